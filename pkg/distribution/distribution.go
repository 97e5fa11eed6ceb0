// Package distribution implements the Distribution engine (spec.md §4.8):
// rule-driven evaluation of whether a requesting user may receive the
// results of a list of feed specifications, mirroring the Authorization
// engine's rule shape over reads instead of writes.
package distribution

import (
	"context"
	"fmt"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
)

// Kind tags the three rule variants, mirroring pkg/authz.Kind.
type Kind string

const (
	Any           Kind = "any"
	None          Kind = "none"
	Specification Kind = "specification"
)

// Rule is one per-feed-type distribution rule, declared by a
// `distribution { share <spec> with <userSpec> }` block (§6.5). Spec's
// sole given is the feed's starting fact and its projection names a
// single fact label identifying the receiving user or device.
type Rule struct {
	Kind Kind
	Spec *spec.Specification
}

// RuleSet holds every rule declared for each feed-subject fact type.
// Rules for the same type are ORed.
type RuleSet struct {
	rules map[string][]Rule
}

// NewRuleSet returns an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[string][]Rule)}
}

// Add appends a rule for feedType.
func (rs *RuleSet) Add(feedType string, r Rule) {
	rs.rules[feedType] = append(rs.rules[feedType], r)
}

// Rules returns the rules declared for feedType.
func (rs *RuleSet) Rules(feedType string) []Rule {
	return append([]Rule(nil), rs.rules[feedType]...)
}

// FactTypes returns every fact type a rule has been declared for, letting
// a caller enumerate the full rule set without reaching into its internal
// map (used by cmd/sigilgraphd's feed registry to build itself from
// whatever the distribution rules file declares).
func (rs *RuleSet) FactTypes() []string {
	types := make([]string, 0, len(rs.rules))
	for t := range rs.rules {
		types = append(types, t)
	}
	return types
}

// Decision is the outcome of CanDistribute: either allowed, or denied with
// a human-readable reason suitable for an ERR frame (§6.3).
type Decision struct {
	Allowed bool
	Reason  string
}

// Engine evaluates a RuleSet against the persistent store. Unlike
// Authorization's isAuthorized, distribution rules always run entirely
// against Store: there is no client-submitted in-memory graph on the read
// path, so splitBeforeFirstSuccessor (§4.7) is not needed here — it is
// reused only by feed construction (§4.4), not by rule evaluation itself.
type Engine struct {
	Rules *RuleSet
	Store run.FactSource
}

// New returns an Engine backed by rules and store.
func New(rules *RuleSet, store run.FactSource) *Engine {
	return &Engine{Rules: rules, Store: store}
}

// CanDistribute answers whether user may receive the results of every feed
// in feeds, each evaluated with its own entry in starts bound to its sole
// given. Every feed in the list must independently authorize (a
// subscription is denied in full if any one of its constituent feeds
// would expose data the user may not see); within one feed's rules, any
// single matching rule authorizes (logical OR, per spec.md §4.6).
func (e *Engine) CanDistribute(ctx context.Context, feeds []*spec.Specification, starts map[string]fact.Reference, user fact.Reference) (Decision, error) {
	for _, feedSpec := range feeds {
		ok, reason, err := e.evaluateFeed(ctx, feedSpec, starts, user)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Allowed: false, Reason: reason}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

func (e *Engine) evaluateFeed(ctx context.Context, feedSpec *spec.Specification, starts map[string]fact.Reference, user fact.Reference) (bool, string, error) {
	if len(feedSpec.Given) == 0 {
		return false, "", sigilerr.Malformed("distribution: feed specification has no given")
	}
	given := feedSpec.Given[0]
	feedType := given.Type

	rules := e.Rules.Rules(feedType)
	if len(rules) == 0 {
		return false, fmt.Sprintf("no distribution rule declared for %q", feedType), nil
	}

	start, ok := starts[given.Name]
	if !ok {
		return false, "", sigilerr.Malformed(fmt.Sprintf("distribution: missing start fact for label %q", given.Name))
	}

	for _, r := range rules {
		switch r.Kind {
		case Any:
			return true, "", nil
		case None:
			continue
		case Specification:
			results, err := run.New(e.Store).Read(ctx, r.Spec, []fact.Reference{start})
			if err != nil {
				return false, "", err
			}
			for _, res := range results {
				if ref, ok := res.Result.(fact.Reference); ok && ref == user {
					return true, "", nil
				}
			}
		}
	}
	return false, fmt.Sprintf("no distribution rule for %q authorizes this user", feedType), nil
}
