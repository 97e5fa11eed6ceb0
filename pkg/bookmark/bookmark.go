// Package bookmark implements the BookmarkManager (spec.md §5): process-
// wide, bounded-lifetime state tracking each feed's last-advanced
// pagination cursor, used by the wire layer to decide when a `SUB`
// deserves an immediate `BOOK` (spec.md §6.3: "the server synchronizes a
// stale client bookmark ... when its own stored value is greater than the
// client's"). This is distinct from pkg/store.Storage's
// LoadBookmark/SaveBookmark, which persist a subscriber's own durable
// resume point; Manager tracks the server's live view of where each feed
// currently stands.
package bookmark

import (
	"strconv"
	"sync"
)

// Manager is a mutex-protected `feed -> bookmark` map ("reads and writes
// are serialized", spec.md §5).
type Manager struct {
	mu        sync.Mutex
	bookmarks map[string]string
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{bookmarks: make(map[string]string)}
}

// Load returns feed's current bookmark, or "", false if none has been
// recorded yet.
func (m *Manager) Load(feed string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookmarks[feed]
	return b, ok
}

// Advance records candidate as feed's bookmark, keeping the stored value
// monotonic: candidate replaces the stored bookmark only if it compares
// strictly greater than what's
// there, so a stale or out-of-order advance is silently ignored rather
// than rolling the feed backward. It returns the bookmark now stored for
// feed (which may be the prior value, unchanged) and whether candidate
// actually advanced it.
func (m *Manager) Advance(feed, candidate string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.bookmarks[feed]
	if ok && !greater(candidate, current) {
		return current, false
	}
	m.bookmarks[feed] = candidate
	return candidate, true
}

// greater compares two bookmark strings, preferring a numeric comparison
// (bookmarks are fact_id-derived decimal strings throughout this
// codebase's backends) and falling back to a lexicographic one so an
// opaque, non-numeric bookmark scheme still has a well-defined order.
func greater(a, b string) bool {
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return an > bn
	}
	return a > b
}
