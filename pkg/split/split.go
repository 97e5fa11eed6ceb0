// Package split implements splitBeforeFirstSuccessor (spec.md §4.7): the
// transformation shared by the authorization and distribution engines
// that divides a Specification at its first successor-bearing match into
// a deterministic, in-memory Head and a store-backed Tail.
package split

import "github.com/sigilrun/sigilgraph/pkg/spec"

// Result is the outcome of splitting a Specification. Tail is nil when
// the whole Specification is deterministic (Head alone suffices); Head is
// nil when the split is not well-defined and the whole Specification must
// run as Tail (spec.md §9's open question on multiple path conditions at
// the pivot).
type Result struct {
	Head *spec.Specification
	Tail *spec.Specification
}

// Split divides s at its first "successor-bearing" match: one containing
// an existential, carrying more than one condition, or whose sole Path
// condition has a non-empty RolesLeft (spec.md §4.7).
func Split(s *spec.Specification) Result {
	pivot := -1
	for i, m := range s.Matches {
		if isPivot(m) {
			pivot = i
			break
		}
	}
	if pivot == -1 {
		return Result{Head: s.Clone()}
	}

	m := s.Matches[pivot]
	if countPaths(m.Conditions) > 1 {
		return Result{Tail: s.Clone()}
	}

	firstPath := m.Conditions[0].(spec.PathCondition)
	if len(firstPath.RolesRight) == 0 {
		return splitAtMatchBoundary(s, pivot)
	}
	return splitWithinPivot(s, pivot, firstPath)
}

func isPivot(m spec.Match) bool {
	if len(m.Conditions) > 1 {
		return true
	}
	p, ok := m.Conditions[0].(spec.PathCondition)
	return ok && len(p.RolesLeft) > 0
}

func countPaths(cs []spec.Condition) int {
	n := 0
	for _, c := range cs {
		if _, ok := c.(spec.PathCondition); ok {
			n++
		}
	}
	return n
}

// splitAtMatchBoundary handles a pure-successor pivot (RolesRight empty):
// everything before the pivot becomes Head, the pivot onward becomes
// Tail, and Head projects whatever labels Tail (or the final projection)
// still needs.
func splitAtMatchBoundary(s *spec.Specification, pivot int) Result {
	headMatches := cloneMatchSlice(s.Matches[:pivot])
	tailMatches := cloneMatchSlice(s.Matches[pivot:])

	given := labelSet(s.Given)
	produced := labelSet(matchLabels(headMatches))
	names := dedupeNames(append(
		neededNamesFromMatches(tailMatches, labelSet(matchLabels(tailMatches))),
		spec.ReferencedLabels(s.Projection)...,
	))
	names = filterNamesToScope(names, unionSets(given, produced))
	needed := resolveLabels(names, typeIndex(s))

	head := &spec.Specification{Given: s.Given, Matches: headMatches, Projection: projectionOf(needed)}
	tail := &spec.Specification{Given: givensOf(needed), Matches: tailMatches, Projection: s.Projection}
	return Result{Head: head, Tail: tail}
}

// splitWithinPivot handles a zig-zag pivot: both RolesLeft and RolesRight
// are non-empty, so the pivot's own Path condition is split at the
// boundary type via a synthetic label (spec.md §4.7's "s1").
func splitWithinPivot(s *spec.Specification, pivot int, firstPath spec.PathCondition) Result {
	const synthetic = "s1"
	boundaryType := firstPath.LabelRight
	if len(firstPath.RolesRight) > 0 {
		boundaryType = firstPath.RolesRight[len(firstPath.RolesRight)-1].PredecessorType
	}

	m := s.Matches[pivot]
	headMatches := cloneMatchSlice(s.Matches[:pivot])
	headMatches = append(headMatches, spec.Match{
		Unknown: spec.Label{Name: synthetic, Type: boundaryType},
		Conditions: []spec.Condition{spec.PathCondition{
			LabelRight: firstPath.LabelRight,
			RolesRight: append([]spec.Role(nil), firstPath.RolesRight...),
		}},
	})

	tailPivot := spec.Match{
		Unknown: m.Unknown,
		Conditions: append([]spec.Condition{spec.PathCondition{
			RolesLeft:  append([]spec.Role(nil), firstPath.RolesLeft...),
			LabelRight: synthetic,
		}}, m.Conditions[1:]...),
	}
	tailMatches := append([]spec.Match{tailPivot}, cloneMatchSlice(s.Matches[pivot+1:])...)

	given := labelSet(s.Given)
	produced := unionSets(labelSet(matchLabels(headMatches)), map[string]bool{synthetic: true})
	names := dedupeNames(append(
		neededNamesFromMatches(tailMatches, labelSet(matchLabels(tailMatches))),
		spec.ReferencedLabels(s.Projection)...,
	))
	names = filterNamesToScope(names, unionSets(given, produced))
	types := typeIndex(s)
	types[synthetic] = boundaryType
	needed := dedupeLabels(append(resolveLabels(names, types), spec.Label{Name: synthetic, Type: boundaryType}))

	head := &spec.Specification{Given: s.Given, Matches: headMatches, Projection: projectionOf(needed)}
	tail := &spec.Specification{Given: givensOf(needed), Matches: tailMatches, Projection: s.Projection}
	return Result{Head: head, Tail: tail}
}

func cloneMatchSlice(ms []spec.Match) []spec.Match {
	out := make([]spec.Match, len(ms))
	for i, m := range ms {
		out[i] = spec.Match{Unknown: m.Unknown, Conditions: append([]spec.Condition(nil), m.Conditions...)}
	}
	return out
}

func matchLabels(ms []spec.Match) []spec.Label {
	out := make([]spec.Label, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Unknown)
	}
	return out
}

func labelSet(ls []spec.Label) map[string]bool {
	out := make(map[string]bool, len(ls))
	for _, l := range ls {
		out[l.Name] = true
	}
	return out
}

func unionSets(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

// neededNamesFromMatches collects every LabelRight referenced by matches
// (including nested existentials) that is not itself produced within the
// same match list — i.e. labels that must come from outside.
func neededNamesFromMatches(matches []spec.Match, ownLabels map[string]bool) []string {
	var out []string
	var walk func(ms []spec.Match)
	walk = func(ms []spec.Match) {
		for _, m := range ms {
			for _, c := range m.Conditions {
				switch cc := c.(type) {
				case spec.PathCondition:
					if !ownLabels[cc.LabelRight] {
						out = append(out, cc.LabelRight)
					}
				case spec.ExistentialCondition:
					walk(cc.Matches)
				}
			}
		}
	}
	walk(matches)
	return out
}

func filterNamesToScope(names []string, scope map[string]bool) []string {
	var out []string
	for _, n := range names {
		if scope[n] {
			out = append(out, n)
		}
	}
	return out
}

func dedupeNames(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func dedupeLabels(ls []spec.Label) []spec.Label {
	seen := map[string]bool{}
	var out []spec.Label
	for _, l := range ls {
		if seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		out = append(out, l)
	}
	return out
}

// typeIndex maps every label name declared anywhere in s to its declared
// type, so a label gathered by name alone (a PathCondition.LabelRight or a
// projection's ReferencedLabels entry) can be resolved back to a typed
// spec.Label.
func typeIndex(s *spec.Specification) map[string]string {
	out := map[string]string{}
	for _, l := range spec.AllLabels(s) {
		out[l.Name] = l.Type
	}
	return out
}

func resolveLabels(names []string, types map[string]string) []spec.Label {
	out := make([]spec.Label, len(names))
	for i, n := range names {
		out[i] = spec.Label{Name: n, Type: types[n]}
	}
	return out
}

// projectionOf builds the composite projection Head emits: one
// fact-reference component per needed label, so Tail can consume them as
// givens.
func projectionOf(needed []spec.Label) spec.Projection {
	comps := make([]spec.NamedComponent, len(needed))
	for i, l := range needed {
		comps[i] = spec.NamedComponent{Name: l.Name, Projection: spec.FactProjection{Label: l.Name}}
	}
	return spec.CompositeProjection{Components: comps}
}

func givensOf(needed []spec.Label) []spec.Given {
	out := make([]spec.Given, len(needed))
	for i, l := range needed {
		out[i] = spec.Given{Name: l.Name, Type: l.Type}
	}
	return out
}
