// Package memstore implements pkg/store.Storage as a mutex-protected
// in-process map, grounded on the teacher's file_ledger.go "in-memory-ish"
// backend — the obvious reference store for tests and single-process
// deployments, exercising the same Storage contract sqlstore does without
// a database.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
	"github.com/sigilrun/sigilgraph/pkg/store"
)

// Store is an in-memory Storage implementation. Facts are indexed by
// reference for O(1) lookup and by (predecessor, role) for successor
// walks, mirroring pkg/fact.Graph's indexing but mutable: Save appends to
// both indices under mu.
type Store struct {
	mu         sync.RWMutex
	facts      map[fact.Reference]*fact.Fact
	successors map[fact.Reference]map[string][]fact.Reference
	bookmarks  map[string]string

	// insertOrder records the sequence facts were saved in, standing in
	// for sqlstore's monotonic fact_id so Feed's bookmark pagination has a
	// stable, append-only ordering to paginate against.
	insertOrder []fact.Reference
	sequence    map[fact.Reference]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		facts:      make(map[fact.Reference]*fact.Fact),
		successors: make(map[fact.Reference]map[string][]fact.Reference),
		bookmarks:  make(map[string]string),
		sequence:   make(map[fact.Reference]int),
	}
}

// FindFact implements run.FactSource.
func (s *Store) FindFact(_ context.Context, ref fact.Reference) (*fact.Fact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[ref]
	return f, ok, nil
}

// Predecessors implements run.FactSource.
func (s *Store) Predecessors(_ context.Context, ref fact.Reference, roleName, predecessorType string) ([]fact.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[ref]
	if !ok {
		return nil, nil
	}
	var out []fact.Reference
	for _, p := range f.Predecessors[roleName] {
		if p.Type == predecessorType {
			out = append(out, p)
		}
	}
	return out, nil
}

// Successors implements run.FactSource.
func (s *Store) Successors(_ context.Context, ref fact.Reference, roleName, successorType string) ([]fact.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRole, ok := s.successors[ref]
	if !ok {
		return nil, nil
	}
	var out []fact.Reference
	for _, succ := range byRole[roleName] {
		if succ.Type == successorType {
			out = append(out, succ)
		}
	}
	return out, nil
}

// Hydrate implements run.FactSource.
func (s *Store) Hydrate(_ context.Context, ref fact.Reference) (*fact.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[ref]
	if !ok {
		return nil, sigilerr.UnknownFact(ref.String())
	}
	return f, nil
}

// Save persists facts, indexing each newly-seen one's predecessor edges
// into the reverse successor index, and returns only the facts that were
// not already present.
func (s *Store) Save(_ context.Context, facts []*fact.Fact) ([]*fact.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []*fact.Fact
	for _, f := range facts {
		ref := f.Reference()
		if _, exists := s.facts[ref]; exists {
			continue
		}
		s.facts[ref] = f
		s.sequence[ref] = len(s.insertOrder)
		s.insertOrder = append(s.insertOrder, ref)

		for role, preds := range f.Predecessors {
			for _, pred := range preds {
				if s.successors[pred] == nil {
					s.successors[pred] = make(map[string][]fact.Reference)
				}
				s.successors[pred][role] = append(s.successors[pred][role], ref)
			}
		}
		fresh = append(fresh, f)
	}
	return fresh, nil
}

// Read delegates to pkg/spec/run.Runner, the same interpreter any
// FactSource-backed query goes through.
func (s *Store) Read(ctx context.Context, sp *spec.Specification, starts []fact.Reference) ([]run.Result, error) {
	return run.New(s).Read(ctx, sp, starts)
}

// Feed runs s via Read and paginates the resulting tuples by each row's
// save-order sequence number across every label bound in the result,
// standing in for sqlstore's fact_id-ordered pagination.
func (s *Store) Feed(ctx context.Context, sp *spec.Specification, starts map[string]fact.Reference, bookmark string, limit int) (store.FeedPage, error) {
	startRefs := make([]fact.Reference, len(sp.Given))
	for i, g := range sp.Given {
		ref, ok := starts[g.Name]
		if !ok {
			return store.FeedPage{}, sigilerr.Malformed("memstore: missing start fact for given " + g.Name)
		}
		startRefs[i] = ref
	}

	results, err := s.Read(ctx, sp, startRefs)
	if err != nil {
		return store.FeedPage{}, err
	}

	s.mu.RLock()
	rows := make([]feedRow, 0, len(results))
	for _, r := range results {
		seq := 0
		for _, ref := range r.Tuple {
			if n := s.sequence[ref]; n > seq {
				seq = n
			}
		}
		rows = append(rows, feedRow{seq: seq, tuple: r.Tuple})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	after := -1
	if bookmark != "" {
		after = decodeBookmark(bookmark)
	}

	var page store.FeedPage
	for _, row := range rows {
		if row.seq <= after {
			continue
		}
		t := store.Tuple{Facts: make(map[string]*fact.Fact, len(row.tuple))}
		for label, ref := range row.tuple {
			f, _, err := s.FindFact(ctx, ref)
			if err != nil {
				return store.FeedPage{}, err
			}
			t.Facts[label] = f
		}
		page.Tuples = append(page.Tuples, t)
		page.Bookmark = encodeBookmark(row.seq)
		if limit > 0 && len(page.Tuples) >= limit {
			break
		}
	}
	if page.Bookmark == "" {
		page.Bookmark = bookmark
	}
	return page, nil
}

// Purge runs sp against the store rooted at start, deletes every fact
// bound to sp's sole given across all matching results, and returns the
// deleted facts so a caller (internal/archival) can mirror them before
// they are gone for good. Purge reads only sp.Given[0]; neither Purge
// nor pkg/spec/validate checks that sp has exactly one given.
func (s *Store) Purge(ctx context.Context, sp *spec.Specification, start fact.Reference) ([]*fact.Fact, error) {
	results, err := s.Read(ctx, sp, []fact.Reference{start})
	if err != nil {
		return nil, err
	}
	given := sp.Given[0].Name

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[fact.Reference]bool)
	var deleted []*fact.Fact
	for _, r := range results {
		ref, ok := r.Tuple[given]
		if !ok || seen[ref] {
			continue
		}
		seen[ref] = true
		f, ok := s.facts[ref]
		if !ok {
			continue
		}
		deleted = append(deleted, f)
		delete(s.facts, ref)
		delete(s.successors, ref)

		for role, preds := range f.Predecessors {
			for _, pred := range preds {
				byRole, ok := s.successors[pred]
				if !ok {
					continue
				}
				filtered := byRole[role][:0]
				for _, succ := range byRole[role] {
					if succ != ref {
						filtered = append(filtered, succ)
					}
				}
				byRole[role] = filtered
			}
		}
	}
	return deleted, nil
}

type feedRow struct {
	seq   int
	tuple run.Tuple
}

// Load retrieves facts by reference, silently omitting misses.
func (s *Store) Load(_ context.Context, refs []fact.Reference) ([]*fact.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*fact.Fact, 0, len(refs))
	for _, ref := range refs {
		if f, ok := s.facts[ref]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// WhichExist returns the subset of refs already saved.
func (s *Store) WhichExist(_ context.Context, refs []fact.Reference) ([]fact.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fact.Reference, 0, len(refs))
	for _, ref := range refs {
		if _, ok := s.facts[ref]; ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

// LoadBookmark returns the stored bookmark for feedID, or "" if none has
// been saved yet.
func (s *Store) LoadBookmark(_ context.Context, feedID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookmarks[feedID], nil
}

// SaveBookmark records bookmark as feedID's resume point.
func (s *Store) SaveBookmark(_ context.Context, feedID string, bookmark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks[feedID] = bookmark
	return nil
}
