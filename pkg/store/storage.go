// Package store defines the Storage contract (spec.md §6.2): write + feed
// access to the fact store, implemented by both pkg/store/memstore (an
// in-process map, grounded on the teacher's file_ledger.go) and
// pkg/store/sqlstore (relational, grounded on the teacher's
// sql_ledger.go/postgres_ledger.go).
package store

import (
	"context"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
)

// Tuple is one row of a feed page: the set of facts a matching result
// bound, keyed by label, mirroring spec.md §6.2's "{ tuples: {facts[]}[] }"
// shape closely enough to carry over the wire (§6.4) without a further
// translation step.
type Tuple struct {
	Facts map[string]*fact.Fact
}

// FeedPage is one paginated response from Storage.Feed: the tuples
// produced since bookmark, and the new bookmark to resume from.
type FeedPage struct {
	Tuples   []Tuple
	Bookmark string
}

// Storage is the full write+feed contract a backend must implement
// (spec.md §6.2). Every method is asynchronous from the caller's
// perspective (returns promptly, no long blocking loop) per spec.md's
// cooperative scheduling model.
type Storage interface {
	run.FactSource

	// Save persists facts (content-addressed; already-known facts are
	// silently accepted) and returns only the subset that was new, so
	// callers can drive reactive dispatch off of genuinely new writes.
	Save(ctx context.Context, facts []*fact.Fact) ([]*fact.Fact, error)

	// Read runs s against the store starting from starts, returning every
	// matching Result (used by rule tails and general queries).
	Read(ctx context.Context, s *spec.Specification, starts []fact.Reference) ([]run.Result, error)

	// Feed returns one page of s's results starting after bookmark
	// ("" for the first page), paginated and monotone by bookmark.
	Feed(ctx context.Context, s *spec.Specification, starts map[string]fact.Reference, bookmark string, limit int) (FeedPage, error)

	// Load retrieves facts by content address. References not present in
	// the store are silently omitted from the result.
	Load(ctx context.Context, refs []fact.Reference) ([]*fact.Fact, error)

	// WhichExist returns the subset of refs already present in the store.
	WhichExist(ctx context.Context, refs []fact.Reference) ([]fact.Reference, error)

	// LoadBookmark and SaveBookmark persist a subscriber's resume point
	// for a named feed (keyed by the feed's canonical hash, per
	// pkg/spec/feed.Feed.Hash).
	LoadBookmark(ctx context.Context, feedID string) (string, error)
	SaveBookmark(ctx context.Context, feedID string, bookmark string) error

	// Purge runs s (a purge specification: exactly one given, no negative
	// existentials per spec.md §3) rooted at start and deletes every fact
	// bound to s's given across all matching results, returning the
	// deleted facts. Purging is not reversible in the live graph; callers
	// wanting an audit trail mirror the returned facts to cold storage
	// (internal/archival) before they are gone for good.
	Purge(ctx context.Context, s *spec.Specification, start fact.Reference) ([]*fact.Fact, error)
}
