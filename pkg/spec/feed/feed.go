// Package feed implements the Feed builder (spec.md §4.4): it produces,
// from a Specification, the set of feeds a subscriber listens to — each a
// normalized, content-addressable description of a graph shape, with no
// projection. It reuses pkg/spec/plan.Compile directly, since a feed's
// `{facts, inputs, edges, notExistsConditions, outputs}` shape is exactly
// plan.QueryDescription's join-compilation output with the parameter
// values read back out as plain structural data.
package feed

import (
	"context"

	"github.com/sigilrun/sigilgraph/pkg/canonicalize"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/plan"
)

// Kind distinguishes a feed's role in the set Build returns.
type Kind string

const (
	// Skeleton is the feed describing the positive shape: every given and
	// match compiled as pkg/spec/plan would for a query, with positive
	// existentials absorbed and negative existentials folded into
	// NotExistsConditions exactly as the Planner renders them.
	Skeleton Kind = "skeleton"

	// NegativeBranch is an additional feed, one per negative existential
	// found anywhere in the Specification's match tree, describing the
	// refuting shape alone (the existential's own matches, rooted at the
	// match it conditions) so the reactive engine can detect a reversal —
	// the refuting shape starting or ceasing to match.
	NegativeBranch Kind = "negative"
)

// Feed is one entry in the set Build returns: a compiled query shape
// tagged with its role and the dotted nested-projection path it belongs
// to ("" for the top level).
type Feed struct {
	Query *plan.QueryDescription
	Kind  Kind
	Path  string
}

// Build produces every feed for s (spec.md §4.4): the positive skeleton,
// one additional feed per negative existential, and feeds recursing into
// every nested specification-projection.
func Build(ctx context.Context, s *spec.Specification, schema plan.Schema) ([]Feed, error) {
	return buildScope(ctx, s.Given, s.Matches, s.Projection, "", schema)
}

// buildScope builds the feed set for one specification-projection level:
// given/matches compiled as the skeleton, negative branches found within
// matches, and recursion into every NestedProjection component of proj.
func buildScope(ctx context.Context, given []spec.Given, matches []spec.Match, proj spec.Projection, path string, schema plan.Schema) ([]Feed, error) {
	q, ok, err := plan.Compile(ctx, &spec.Specification{Given: given, Matches: matches}, schema)
	if err != nil {
		return nil, err
	}

	var out []Feed
	if ok {
		out = append(out, Feed{Query: q, Kind: Skeleton, Path: path})
	}

	branches, err := negativeBranches(ctx, matches, path, schema)
	if err != nil {
		return nil, err
	}
	out = append(out, branches...)

	nested, err := nestedFeeds(ctx, given, matches, proj, path, schema)
	if err != nil {
		return nil, err
	}
	out = append(out, nested...)

	return out, nil
}

// negativeBranches walks matches, recursing into every positive
// existential's own matches (the skeleton absorbs those into the same
// scope, so their own negative conditions are found here too), and emits
// one additional feed per negative existential, rooted at the match it
// conditions.
func negativeBranches(ctx context.Context, matches []spec.Match, path string, schema plan.Schema) ([]Feed, error) {
	var out []Feed
	for _, m := range matches {
		for _, c := range m.Conditions {
			ex, ok := c.(spec.ExistentialCondition)
			if !ok {
				continue
			}
			if ex.Exists {
				sub, err := negativeBranches(ctx, ex.Matches, path, schema)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
				continue
			}

			anchor := spec.Given{Name: m.Unknown.Name, Type: m.Unknown.Type}
			q, ok, err := plan.Compile(ctx, &spec.Specification{Given: []spec.Given{anchor}, Matches: ex.Matches}, schema)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, Feed{Query: q, Kind: NegativeBranch, Path: path})
			}

			sub, err := negativeBranches(ctx, ex.Matches, path, schema)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

// nestedFeeds recurses into every NestedProjection component of proj,
// widening given to the full enclosing scope per pkg/spec/plan/compose.go
// and pkg/spec/invert's shared convention, and tagging the recursion's
// feeds with a dotted path.
func nestedFeeds(ctx context.Context, given []spec.Given, matches []spec.Match, proj spec.Projection, path string, schema plan.Schema) ([]Feed, error) {
	comp, ok := proj.(spec.CompositeProjection)
	if !ok {
		return nil, nil
	}
	var out []Feed
	for _, c := range comp.Components {
		nested, ok := c.Projection.(spec.NestedProjection)
		if !ok {
			continue
		}
		childGiven := givensFromScope(given, matches)
		childPath := path + "." + c.Name
		feeds, err := buildScope(ctx, childGiven, nested.Matches, nested.Projection, childPath, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, feeds...)
	}
	return out, nil
}

func givensFromScope(given []spec.Given, matches []spec.Match) []spec.Given {
	out := append([]spec.Given(nil), given...)
	for _, m := range matches {
		out = append(out, spec.Given{Name: m.Unknown.Name, Type: m.Unknown.Type})
	}
	return out
}

// canonical is the label-free, hash-stable shape Hash serializes: facts
// and edges are already zero-based in traversal order from plan.Compile,
// so only Inputs/Outputs need their label names dropped for two
// structurally identical feeds (same shape, different label names) to
// hash identically.
type canonical struct {
	Kind                Kind                 `json:"kind"`
	Path                string               `json:"path"`
	Facts               []plan.FactDescription `json:"facts"`
	Inputs              []canonicalInput     `json:"inputs"`
	Edges               []canonicalEdge      `json:"edges"`
	NotExistsConditions []canonicalNotExists `json:"notExistsConditions"`
	Outputs             []canonicalOutput    `json:"outputs"`
}

type canonicalInput struct {
	FactIndex int `json:"factIndex"`
	TypeID    int `json:"typeId"`
}

type canonicalEdge struct {
	PredecessorFactIndex int `json:"predecessorFactIndex"`
	SuccessorFactIndex   int `json:"successorFactIndex"`
	RoleID               int `json:"roleId"`
}

type canonicalNotExists struct {
	Edges               []canonicalEdge      `json:"edges"`
	NotExistsConditions []canonicalNotExists `json:"notExistsConditions"`
}

type canonicalOutput struct {
	FactIndex int    `json:"factIndex"`
	Type      string `json:"type"`
}

// Hash returns f's canonical structural hash (spec.md §4.4): JCS+SHA-256
// over its label-free shape, so two specifications producing structurally
// identical feeds share subscribers regardless of label names.
func (f Feed) Hash() (string, error) {
	c := canonical{
		Kind:                f.Kind,
		Path:                f.Path,
		Facts:               f.Query.Facts,
		Inputs:              canonicalInputs(f.Query.Inputs, f.Query.Parameters),
		Edges:               canonicalEdges(f.Query.Edges, f.Query.Parameters),
		NotExistsConditions: canonicalNotExistsList(f.Query.NotExistsConditions, f.Query.Parameters),
		Outputs:             canonicalOutputs(f.Query.Outputs),
	}
	return canonicalize.CanonicalHash(c)
}

func canonicalInputs(inputs []plan.Input, params []any) []canonicalInput {
	out := make([]canonicalInput, len(inputs))
	for i, in := range inputs {
		out[i] = canonicalInput{FactIndex: in.FactIndex, TypeID: intParam(params, in.FactTypeParameter)}
	}
	return out
}

func canonicalEdges(edges []plan.EdgeDescription, params []any) []canonicalEdge {
	out := make([]canonicalEdge, len(edges))
	for i, e := range edges {
		out[i] = canonicalEdge{
			PredecessorFactIndex: e.PredecessorFactIndex,
			SuccessorFactIndex:   e.SuccessorFactIndex,
			RoleID:               intParam(params, e.RoleParameter),
		}
	}
	return out
}

func canonicalNotExistsList(ncs []plan.NotExistsCondition, params []any) []canonicalNotExists {
	out := make([]canonicalNotExists, len(ncs))
	for i, nc := range ncs {
		out[i] = canonicalNotExists{
			Edges:               canonicalEdges(nc.Edges, params),
			NotExistsConditions: canonicalNotExistsList(nc.NotExistsConditions, params),
		}
	}
	return out
}

func canonicalOutputs(outputs []plan.Output) []canonicalOutput {
	out := make([]canonicalOutput, len(outputs))
	for i, o := range outputs {
		out[i] = canonicalOutput{FactIndex: o.FactIndex, Type: o.Type}
	}
	return out
}

func intParam(params []any, idx int) int {
	if idx < 0 || idx >= len(params) {
		return -1
	}
	v, _ := params[idx].(int)
	return v
}
