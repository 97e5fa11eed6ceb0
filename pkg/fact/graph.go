package fact

import (
	"context"
	"sync"

	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
)

// Graph is an immutable in-memory fact collection satisfying
// pkg/spec/run.FactSource by structural typing. It holds exactly the facts
// a client submitted in one save request — the new fact plus whatever
// predecessors were included alongside it — so the Authorization engine's
// head (spec.md §4.6) can run directly against it without a store round
// trip. Successor lookups are answered by a reverse index built once at
// construction, mirroring the teacher's DAG-node map in
// core/pkg/proofgraph/graph.go.
type Graph struct {
	mu         sync.RWMutex
	facts      map[Reference]*Fact
	successors map[Reference]map[string][]Reference // predecessor ref -> role -> successor refs
}

// NewGraph indexes facts for lookup. Facts referencing predecessors not
// present in facts are kept (their predecessor edges simply never resolve
// to anything), since a submitted graph may legitimately stop short of the
// full ancestry already known to the store.
func NewGraph(facts []*Fact) *Graph {
	g := &Graph{
		facts:      make(map[Reference]*Fact, len(facts)),
		successors: make(map[Reference]map[string][]Reference),
	}
	for _, f := range facts {
		if f == nil {
			continue
		}
		g.facts[f.Reference()] = f
	}
	for _, f := range facts {
		if f == nil {
			continue
		}
		for role, preds := range f.Predecessors {
			for _, p := range preds {
				byRole, ok := g.successors[p]
				if !ok {
					byRole = make(map[string][]Reference)
					g.successors[p] = byRole
				}
				byRole[role] = append(byRole[role], f.Reference())
			}
		}
	}
	return g
}

// FindFact returns the fact identified by ref, or (nil, false) if absent.
func (g *Graph) FindFact(_ context.Context, ref Reference) (*Fact, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.facts[ref]
	return f, ok, nil
}

// Predecessors returns ref's references under roleName, filtered to
// predecessorType.
func (g *Graph) Predecessors(_ context.Context, ref Reference, roleName, predecessorType string) ([]Reference, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.facts[ref]
	if !ok {
		return nil, nil
	}
	var out []Reference
	for _, p := range f.Predecessors.Many(roleName) {
		if p.Type == predecessorType {
			out = append(out, p)
		}
	}
	return out, nil
}

// Successors returns every indexed reference whose roleName edge points at
// ref, filtered to successorType.
func (g *Graph) Successors(_ context.Context, ref Reference, roleName, successorType string) ([]Reference, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Reference
	for _, s := range g.successors[ref][roleName] {
		if s.Type == successorType {
			out = append(out, s)
		}
	}
	return out, nil
}

// Hydrate returns ref's fact, or an ErrUnknownFact-classified error.
func (g *Graph) Hydrate(_ context.Context, ref Reference) (*Fact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.facts[ref]
	if !ok {
		return nil, sigilerr.UnknownFact(ref.String())
	}
	return f, nil
}

// Facts returns every fact held by the graph, in no particular order.
func (g *Graph) Facts() []*Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Fact, 0, len(g.facts))
	for _, f := range g.facts {
		out = append(out, f)
	}
	return out
}
