package run

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// Tuple maps a label name to the fact reference currently bound to it.
type Tuple map[string]fact.Reference

// clone returns a shallow copy of t (reference values are themselves
// copied, so the copy is safe to extend independently of t).
func (t Tuple) clone() Tuple {
	out := make(Tuple, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Result is one projected output of running a Specification: the full
// label→reference tuple that produced it, and the projection's computed
// value.
type Result struct {
	Tuple  Tuple
	Result any
}

// Runner interprets a Specification against a FactSource, per spec.md
// §4.2.
type Runner struct {
	Source FactSource
	Logger *slog.Logger
}

// New returns a Runner reading from source.
func New(source FactSource) *Runner {
	return &Runner{Source: source, Logger: slog.Default()}
}

// Read executes s against the runner's FactSource with the provided start
// facts bound to s.Given (by position), returning every projected result.
// Results are produced in the order yielded by the source's
// predecessor/successor enumeration (spec.md §4.2 "Ordering &
// determinism").
func (r *Runner) Read(ctx context.Context, s *spec.Specification, starts []fact.Reference) ([]Result, error) {
	if len(starts) != len(s.Given) {
		return nil, sigilerr.Malformed(fmt.Sprintf("expected %d given(s), got %d", len(s.Given), len(starts)))
	}

	base := make(Tuple, len(s.Given))
	for i, g := range s.Given {
		base[g.Name] = starts[i]
	}

	// Step 1: evaluate every given's existential conditions against the
	// full given tuple; any failure makes the whole read empty.
	for _, g := range s.Given {
		for _, c := range g.Conditions {
			ok, err := r.evalCondition(ctx, base, g.Name, c)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
		}
	}

	tuples, err := r.extendMatches(ctx, []Tuple{base}, s.Matches)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(tuples))
	for _, t := range tuples {
		val, err := r.project(ctx, s.Projection, t)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Tuple: t, Result: val})
	}
	return results, nil
}

// extendMatches runs matches in order against every tuple in tuples,
// returning the fully extended tuple set.
func (r *Runner) extendMatches(ctx context.Context, tuples []Tuple, matches []spec.Match) ([]Tuple, error) {
	for _, m := range matches {
		var next []Tuple
		for _, t := range tuples {
			extended, err := r.extendOneMatch(ctx, t, m)
			if err != nil {
				return nil, err
			}
			next = append(next, extended...)
		}
		tuples = next
	}
	return tuples, nil
}

// extendOneMatch binds m.Unknown within tuple t, then filters by the
// remaining conditions (and the nested-existential conditions found among
// them), returning every surviving extended tuple.
func (r *Runner) extendOneMatch(ctx context.Context, t Tuple, m spec.Match) ([]Tuple, error) {
	if len(m.Conditions) == 0 {
		return nil, sigilerr.Malformed(fmt.Sprintf("match %q has no binding condition", m.Unknown.Name))
	}
	bindPath, ok := m.Conditions[0].(spec.PathCondition)
	if !ok {
		return nil, sigilerr.Malformed(fmt.Sprintf("match %q's first condition is not a Path", m.Unknown.Name))
	}

	candidates, err := r.bindUnknown(ctx, t, m.Unknown, bindPath)
	if err != nil {
		return nil, err
	}

	var out []Tuple
	for _, cand := range candidates {
		extended := t.clone()
		extended[m.Unknown.Name] = cand

		ok := true
		for _, c := range m.Conditions[1:] {
			satisfied, err := r.evalCondition(ctx, extended, m.Unknown.Name, c)
			if err != nil {
				return nil, err
			}
			if !satisfied {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, extended)
		}
	}
	return out, nil
}

// bindUnknown finds every candidate reference for unknown by reverse-
// walking rolesLeft from the roots reached by walking rolesRight forward
// from labelRight (spec.md §4.2 step 4).
func (r *Runner) bindUnknown(ctx context.Context, t Tuple, unknown spec.Label, p spec.PathCondition) ([]fact.Reference, error) {
	rightStart, ok := t[p.LabelRight]
	if !ok {
		return nil, sigilerr.Malformed(fmt.Sprintf("label %q not bound", p.LabelRight))
	}

	roots, err := r.walkPredecessors(ctx, []fact.Reference{rightStart}, p.RolesRight)
	if err != nil {
		return nil, err
	}

	return r.walkSuccessorsReverse(ctx, roots, p.RolesLeft, unknown.Type)
}

// walkPredecessors walks roles, in order, as predecessor steps starting
// from start, fanning out when a role yields multiple predecessors.
func (r *Runner) walkPredecessors(ctx context.Context, start []fact.Reference, roles []spec.Role) ([]fact.Reference, error) {
	current := start
	for _, role := range roles {
		var next []fact.Reference
		for _, ref := range current {
			preds, err := r.Source.Predecessors(ctx, ref, role.Name, role.PredecessorType)
			if err != nil {
				return nil, err
			}
			next = append(next, preds...)
		}
		current = next
	}
	return current, nil
}

// walkSuccessorsReverse discovers every fact of type finalType reachable
// by walking roles in REVERSE as successor steps starting from start. This
// is the inverse of walkPredecessors: given the endpoint of a forward
// predecessor walk, it enumerates every possible origin.
func (r *Runner) walkSuccessorsReverse(ctx context.Context, start []fact.Reference, roles []spec.Role, finalType string) ([]fact.Reference, error) {
	current := start
	for j := len(roles) - 1; j >= 0; j-- {
		ownerType := finalType
		if j > 0 {
			ownerType = roles[j-1].PredecessorType
		}
		var next []fact.Reference
		for _, ref := range current {
			succs, err := r.Source.Successors(ctx, ref, roles[j].Name, ownerType)
			if err != nil {
				return nil, err
			}
			next = append(next, succs...)
		}
		current = next
	}
	return current, nil
}

// evalCondition evaluates a single Condition against the current tuple.
// owner is the label name of the match this condition belongs to (the
// label a Path filter's RolesLeft walk originates from).
func (r *Runner) evalCondition(ctx context.Context, t Tuple, owner string, c spec.Condition) (bool, error) {
	switch cc := c.(type) {
	case spec.PathCondition:
		return r.evalPathFilter(ctx, t, owner, cc)
	case spec.ExistentialCondition:
		inner, err := r.extendMatches(ctx, []Tuple{t}, cc.Matches)
		if err != nil {
			return false, err
		}
		nonEmpty := len(inner) > 0
		return nonEmpty == cc.Exists, nil
	default:
		return false, sigilerr.Malformed("unrecognized condition tag")
	}
}

// evalPathFilter checks, for a Path condition applied as a filter (not as
// the binding condition), that walking rolesLeft forward from owner's
// already-bound candidate overlaps with walking rolesRight forward from
// labelRight.
func (r *Runner) evalPathFilter(ctx context.Context, t Tuple, owner string, p spec.PathCondition) (bool, error) {
	rightStart, ok := t[p.LabelRight]
	if !ok {
		return false, sigilerr.Malformed(fmt.Sprintf("label %q not bound", p.LabelRight))
	}
	roots, err := r.walkPredecessors(ctx, []fact.Reference{rightStart}, p.RolesRight)
	if err != nil {
		return false, err
	}

	leftStart, ok := t[owner]
	if !ok {
		return false, sigilerr.Malformed(fmt.Sprintf("label %q not bound", owner))
	}
	leftEnds, err := r.walkPredecessors(ctx, []fact.Reference{leftStart}, p.RolesLeft)
	if err != nil {
		return false, err
	}

	for _, a := range roots {
		for _, b := range leftEnds {
			if a == b {
				return true, nil
			}
		}
	}
	return false, nil
}

// project computes the value of p against tuple t.
func (r *Runner) project(ctx context.Context, p spec.Projection, t Tuple) (any, error) {
	switch pp := p.(type) {
	case spec.CompositeProjection:
		out := make(map[string]any, len(pp.Components))
		for _, comp := range pp.Components {
			v, err := r.project(ctx, comp.Projection, t)
			if err != nil {
				return nil, err
			}
			out[comp.Name] = v
		}
		return out, nil
	case spec.NestedProjection:
		tuples, err := r.extendMatches(ctx, []Tuple{t}, pp.Matches)
		if err != nil {
			return nil, err
		}
		results := make([]any, 0, len(tuples))
		for _, nt := range tuples {
			v, err := r.project(ctx, pp.Projection, nt)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
		return results, nil
	case spec.FactProjection:
		ref, ok := t[pp.Label]
		if !ok {
			return nil, sigilerr.Malformed(fmt.Sprintf("projection references unbound label %q", pp.Label))
		}
		return ref, nil
	case spec.FieldProjection:
		ref, ok := t[pp.Label]
		if !ok {
			return nil, sigilerr.Malformed(fmt.Sprintf("projection references unbound label %q", pp.Label))
		}
		f, err := r.Source.Hydrate(ctx, ref)
		if err != nil {
			return nil, err
		}
		v, _ := f.Field(pp.Field)
		return v, nil
	case spec.HashProjection:
		ref, ok := t[pp.Label]
		if !ok {
			return nil, sigilerr.Malformed(fmt.Sprintf("projection references unbound label %q", pp.Label))
		}
		return ref.Hash, nil
	default:
		return nil, sigilerr.Malformed("unrecognized projection tag")
	}
}
