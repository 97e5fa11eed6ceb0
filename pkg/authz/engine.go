// Package authz implements the Authorization engine (spec.md §4.6):
// per-type rules deciding whether a user fact may author a given fact.
package authz

import (
	"context"
	"fmt"
	"sync"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
	"github.com/sigilrun/sigilgraph/pkg/split"
)

// Kind tags the three rule variants spec.md §4.6 defines per fact type.
type Kind string

const (
	Any           Kind = "any"
	None          Kind = "none"
	Specification Kind = "specification"
)

// Rule is one per-type authorization rule. For Kind Specification, Spec's
// sole Given is the fact being authorized and its Projection names a
// single fact label identifying the authoring user or device.
type Rule struct {
	Kind Kind
	Spec *spec.Specification
}

// RuleSet holds every rule declared for each fact type, keyed by type and
// loaded from the text format of §6.5 at startup. Rules for the same type
// are ORed, mirroring the teacher's tuple registry in
// core/pkg/authz/engine.go.
type RuleSet struct {
	mu    sync.RWMutex
	rules map[string][]Rule
}

// NewRuleSet returns an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[string][]Rule)}
}

// Add appends a rule for factType.
func (rs *RuleSet) Add(factType string, r Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules[factType] = append(rs.rules[factType], r)
}

// Rules returns a copy of the rules declared for factType.
func (rs *RuleSet) Rules(factType string) []Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]Rule(nil), rs.rules[factType]...)
}

// Engine evaluates a RuleSet's rules against a submitted fact graph and a
// persistent store, per spec.md §4.6's isAuthorized and
// getAuthorizedPopulation.
type Engine struct {
	Rules *RuleSet
	Store run.FactSource
}

// New returns an Engine backed by rules and store.
func New(rules *RuleSet, store run.FactSource) *Engine {
	return &Engine{Rules: rules, Store: store}
}

// IsAuthorized reports whether user may author newFact, given graph (the
// new fact plus whatever predecessors the client submitted alongside it).
// Every rule declared for newFact.Type is tried in turn; an "any" rule
// authorizes immediately, a "none" rule is skipped (it never authorizes on
// its own), and a "specification" rule authorizes when its rule
// specification's result set, evaluated with newFact bound to the rule's
// given, contains user's reference. A type with no declared rules is
// denied — no rule ever authorizes implicitly.
func (e *Engine) IsAuthorized(ctx context.Context, newFact fact.Reference, graph *fact.Graph, user fact.Reference) (bool, error) {
	for _, r := range e.Rules.Rules(newFact.Type) {
		switch r.Kind {
		case Any:
			return true, nil
		case None:
			continue
		case Specification:
			results, err := e.runRule(ctx, r.Spec, newFact, graph)
			if err != nil {
				return false, err
			}
			if containsReference(results, user) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Population is the result of getAuthorizedPopulation: either every
// candidate (an "any" rule matched) or an explicit, possibly empty, set of
// authorized public keys.
type Population struct {
	Everyone bool
	Keys     map[string]bool
}

// Allows reports whether publicKey is in the population.
func (p Population) Allows(publicKey string) bool {
	return p.Everyone || p.Keys[publicKey]
}

// GetAuthorizedPopulation answers "which of candidates may receive
// newFact?" for the distribution engine. Each type-rule contributes: "any"
// unions in everyone (short-circuiting the whole call), "none" contributes
// nothing, and "specification" intersects candidates against the public
// keys the rule specification resolves to. Contributions across rules are
// unioned.
func (e *Engine) GetAuthorizedPopulation(ctx context.Context, newFact fact.Reference, graph *fact.Graph, candidates []string) (Population, error) {
	candidateSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = true
	}

	union := Population{Keys: map[string]bool{}}
	for _, r := range e.Rules.Rules(newFact.Type) {
		switch r.Kind {
		case Any:
			return Population{Everyone: true}, nil
		case None:
			continue
		case Specification:
			results, err := e.runRule(ctx, r.Spec, newFact, graph)
			if err != nil {
				return Population{}, err
			}
			for _, ref := range results {
				key, err := e.publicKey(ctx, ref, graph)
				if err != nil {
					return Population{}, err
				}
				if key != "" && candidateSet[key] {
					union.Keys[key] = true
				}
			}
		}
	}
	return union, nil
}

// runRule evaluates ruleSpec with start bound to its sole given, splitting
// it (§4.7) so the predecessor-only head runs against the in-memory graph
// and the successor-bearing tail runs against the persistent store, and
// returns every resulting fact reference.
func (e *Engine) runRule(ctx context.Context, ruleSpec *spec.Specification, start fact.Reference, graph *fact.Graph) ([]fact.Reference, error) {
	parts := split.Split(ruleSpec)

	var results []run.Result
	switch {
	case parts.Tail == nil:
		rs, err := run.New(graph).Read(ctx, parts.Head, []fact.Reference{start})
		if err != nil {
			return nil, err
		}
		results = rs
	case parts.Head == nil:
		rs, err := run.New(e.Store).Read(ctx, parts.Tail, []fact.Reference{start})
		if err != nil {
			return nil, err
		}
		results = rs
	default:
		headResults, err := run.New(graph).Read(ctx, parts.Head, []fact.Reference{start})
		if err != nil {
			return nil, err
		}
		for _, hr := range headResults {
			starts := make([]fact.Reference, len(parts.Tail.Given))
			for i, g := range parts.Tail.Given {
				ref, ok := hr.Tuple[g.Name]
				if !ok {
					return nil, sigilerr.Malformed(fmt.Sprintf("authorization rule split: head result missing label %q", g.Name))
				}
				starts[i] = ref
			}
			tailResults, err := run.New(e.Store).Read(ctx, parts.Tail, starts)
			if err != nil {
				return nil, err
			}
			results = append(results, tailResults...)
		}
	}

	out := make([]fact.Reference, 0, len(results))
	for _, res := range results {
		if ref, ok := res.Result.(fact.Reference); ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

// publicKey resolves the publicKey field of the user fact ref, checking
// the in-memory graph first (covers a user fact the client submitted
// alongside newFact) and falling back to the store.
func (e *Engine) publicKey(ctx context.Context, ref fact.Reference, graph *fact.Graph) (string, error) {
	if f, ok, _ := graph.FindFact(ctx, ref); ok {
		if v, ok := f.Field("publicKey"); ok {
			if s, ok := v.(string); ok {
				return s, nil
			}
		}
	}
	f, err := e.Store.Hydrate(ctx, ref)
	if err != nil {
		return "", err
	}
	v, _ := f.Field("publicKey")
	s, _ := v.(string)
	return s, nil
}

func containsReference(refs []fact.Reference, target fact.Reference) bool {
	for _, r := range refs {
		if r == target {
			return true
		}
	}
	return false
}
