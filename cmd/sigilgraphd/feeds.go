package main

import (
	"fmt"
	"log/slog"

	"github.com/sigilrun/sigilgraph/pkg/distribution"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/validate"
)

// FeedRegistry maps a fact type name to the Specification subscribers of
// that type's feed receive. A `distribution { share <Type> ... with
// <projection> }` block (spec.md §6.5) does double duty here: the same
// Specification both answers "may this user see it" (distribution.Engine)
// and "what does the feed actually contain" (Storage.Feed) — its given is
// the feed's anchor fact and its matches/projection are exactly the
// tuples a subscriber is shown. Fact types whose only distribution rules
// are bare "any"/"none" have no Specification to serve as feed content and
// are not registered; subscribing to one of those is a configuration
// error surfaced at SUB time, not at startup.
type FeedRegistry struct {
	byType map[string]*spec.Specification
}

// NewFeedRegistry builds a FeedRegistry from every Specification-kind
// distribution rule in rules, validating each one first (spec.md §4.1) in
// the connectivity mode configured by SIGILGRAPH_CONNECTIVITY_MODE.
func NewFeedRegistry(rules *distribution.RuleSet, mode validate.ConnectivityMode) (*FeedRegistry, error) {
	reg := &FeedRegistry{byType: make(map[string]*spec.Specification)}
	v := &validate.Validator{Mode: mode, Logger: slog.Default()}
	for _, factType := range rules.FactTypes() {
		for _, r := range rules.Rules(factType) {
			if r.Kind != distribution.Specification || r.Spec == nil {
				continue
			}
			if err := v.ValidateErr(r.Spec); err != nil {
				return nil, fmt.Errorf("sigilgraphd: feed %q: %w", factType, err)
			}
			reg.byType[factType] = r.Spec
			break
		}
	}
	return reg, nil
}

// Lookup returns the feed content specification declared for factType, or
// false if none was registered.
func (f *FeedRegistry) Lookup(factType string) (*spec.Specification, bool) {
	s, ok := f.byType[factType]
	return s, ok
}
