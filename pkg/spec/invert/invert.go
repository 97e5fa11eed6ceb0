// Package invert implements the Inverter (spec.md §4.5): given a
// Specification, it produces the set of inverse specifications that drive
// incremental re-evaluation when a new fact is saved. Each inverse is
// rooted at one originally-unknown label — running it with a freshly
// saved fact of that label's type as its given tells the reactive engine
// whether the original query's result set may have changed.
package invert

import (
	"sort"

	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// Operation tags whether an inverse signals a potential addition or
// removal from the original query's result set.
type Operation string

const (
	Add    Operation = "add"
	Remove Operation = "remove"
)

// flip applies the parent-operation × exists table from spec.md §4.5's
// "Existential inversion": add×true→add, add×false→remove, and a
// parent=remove flips both outcomes relative to that row.
func flip(parent Operation, exists bool) Operation {
	add := exists // add-parent row: true->add, false->remove
	result := Add
	if !add {
		result = Remove
	}
	if parent == Remove {
		if result == Add {
			return Remove
		}
		return Add
	}
	return result
}

// Inverse is one SpecificationInverse entry (spec.md §4.5).
type Inverse struct {
	Specification *spec.Specification
	Operation     Operation
	GivenSubset   []string
	ParentSubset  []string
	ResultSubset  []string
	Path          string
}

// Invert computes every inverse of s, including inverses rooted inside
// existential conditions and inverses for every nested specification-
// projection (tagged with their dotted path).
func Invert(s *spec.Specification) []Inverse {
	return invertScope(s.Given, s.Matches, s.Projection, "", nil, Add)
}

// invertScope computes the inverses of one specification-projection
// level: matches shaken to root at each of its own unknowns, inverses
// rooted inside existential conditions at this level, and a recursive
// call into every NestedProjection component found in proj.
func invertScope(given []spec.Given, matches []spec.Match, proj spec.Projection, path string, parentSubset []string, baseOp Operation) []Inverse {
	var out []Inverse

	resultSubset := append(givenNames(given), matchNames(matches)...)

	for _, root := range matchNames(matches) {
		shaken, rootConds, ok := shakeTree(given, matches, labelOf(given, matches, root))
		if !ok {
			continue
		}
		out = append(out, Inverse{
			Specification: &spec.Specification{
				Given:      []spec.Given{{Name: root, Type: typeOf(given, matches, root), Conditions: rootConds}},
				Matches:    shaken,
				Projection: proj,
			},
			Operation:    baseOp,
			GivenSubset:  givenNames(given),
			ParentSubset: append([]string(nil), parentSubset...),
			ResultSubset: resultSubset,
			Path:         path,
		})
	}

	out = append(out, existentialInverses(given, matches, proj, path, parentSubset, baseOp)...)
	out = append(out, nestedInverses(given, matches, proj, path, resultSubset)...)
	return out
}

// existentialInverses handles spec.md §4.5's "Existential inversion":
// every existential condition in matches contributes one additional
// round of inverses, rooted at each unknown introduced by the
// existential's own nested matches, computed against the combined match
// list (outer matches plus the existential's), with Operation flipped via
// the parent-operation × exists table.
func existentialInverses(given []spec.Given, matches []spec.Match, proj spec.Projection, path string, parentSubset []string, baseOp Operation) []Inverse {
	var out []Inverse
	for _, m := range matches {
		for _, c := range m.Conditions {
			ex, ok := c.(spec.ExistentialCondition)
			if !ok {
				continue
			}
			combined := append(append([]spec.Match(nil), matches...), ex.Matches...)
			childOp := flip(baseOp, ex.Exists)
			resultSubset := append(givenNames(given), matchNames(combined)...)
			for _, root := range matchNames(ex.Matches) {
				shaken, rootConds, ok := shakeTree(given, combined, labelOf(given, combined, root))
				if !ok {
					continue
				}
				out = append(out, Inverse{
					Specification: &spec.Specification{
						Given:      []spec.Given{{Name: root, Type: typeOf(given, combined, root), Conditions: rootConds}},
						Matches:    shaken,
						Projection: proj,
					},
					Operation:    childOp,
					GivenSubset:  givenNames(given),
					ParentSubset: append([]string(nil), parentSubset...),
					ResultSubset: resultSubset,
					Path:         path,
				})
			}
			out = append(out, existentialInverses(given, ex.Matches, proj, path, parentSubset, childOp)...)
		}
	}
	return out
}

// nestedInverses recurses into every NestedProjection component of proj.
// Per pkg/spec/plan/compose.go's scope convention, a nested level's given
// set is the entire enclosing scope (given ∪ the enclosing matches'
// unknowns), so its inverses' ParentSubset is that enclosing identifier.
func nestedInverses(given []spec.Given, matches []spec.Match, proj spec.Projection, path string, enclosingSubset []string) []Inverse {
	comp, ok := proj.(spec.CompositeProjection)
	if !ok {
		return nil
	}
	var out []Inverse
	for _, c := range comp.Components {
		nested, ok := c.Projection.(spec.NestedProjection)
		if !ok {
			continue
		}
		childPath := path + "." + c.Name
		childGiven := givensFromScope(given, matches)
		out = append(out, invertScope(childGiven, nested.Matches, nested.Projection, childPath, enclosingSubset, Add)...)
	}
	return out
}

func givensFromScope(given []spec.Given, matches []spec.Match) []spec.Given {
	out := append([]spec.Given(nil), given...)
	for _, m := range matches {
		out = append(out, spec.Given{Name: m.Unknown.Name, Type: m.Unknown.Type})
	}
	return out
}

func givenNames(given []spec.Given) []string {
	out := make([]string, len(given))
	for i, g := range given {
		out[i] = g.Name
	}
	return out
}

func matchNames(matches []spec.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Unknown.Name
	}
	return out
}

func labelOf(given []spec.Given, matches []spec.Match, name string) spec.Label {
	return spec.Label{Name: name, Type: typeOf(given, matches, name)}
}

func typeOf(given []spec.Given, matches []spec.Match, name string) string {
	for _, g := range given {
		if g.Name == name {
			return g.Type
		}
	}
	for _, m := range matches {
		if m.Unknown.Name == name {
			return m.Unknown.Type
		}
	}
	return ""
}

// edge is one tree edge derived from a match's binding (first) Path
// condition: Child is the match's unknown, Parent is the condition's
// LabelRight, and RolesLeft/RolesRight are the original walk from Child
// to Parent. Extra carries the match's remaining (filter/existential)
// conditions, replayed unchanged once Child is placed.
type edge struct {
	Child      string
	Parent     string
	RolesLeft  []spec.Role
	RolesRight []spec.Role
	Extra      []spec.Condition
}

// flipEdge reverses e's direction (spec.md §4.5 step 2): "the new
// condition on the original labelRight's match has labelRight=L, with
// rolesLeft and rolesRight swapped." Extra conditions do not carry across
// a flip — they belonged to the original Child's match, which no longer
// exists as such once its direction reverses.
func (e edge) flipEdge() edge {
	return edge{Child: e.Parent, Parent: e.Child, RolesLeft: e.RolesRight, RolesRight: e.RolesLeft}
}

// shakeTree re-roots matches on root (spec.md §4.5). It returns the
// reordered, direction-corrected match list (root's own match excluded —
// the caller installs root as the inverse's Given instead), the filter
// and existential conditions that belonged to root's own original match
// (migrated onto the new Given, per spec.Given.Conditions), and ok=false
// when placement could not complete within the iteration caps, or when
// step 4's simplification discards the whole inverse as unsatisfiable.
func shakeTree(given []spec.Given, matches []spec.Match, root spec.Label) ([]spec.Match, []spec.Condition, bool) {
	edges := make([]edge, 0, len(matches))
	for _, m := range matches {
		p, ok := m.Conditions[0].(spec.PathCondition)
		if !ok {
			return nil, nil, false
		}
		edges = append(edges, edge{
			Child: m.Unknown.Name, Parent: p.LabelRight,
			RolesLeft: p.RolesLeft, RolesRight: p.RolesRight,
			Extra: m.Conditions[1:],
		})
	}
	byChild := make(map[string]edge, len(edges))
	for _, e := range edges {
		byChild[e.Child] = e
	}

	var rootConds []spec.Condition
	if e, ok := byChild[root.Name]; ok {
		rootConds = append([]spec.Condition(nil), e.Extra...)
	}
	if referencesFreshSuccessor(rootConds, root.Name) {
		return nil, nil, false
	}

	labelNames := map[string]bool{}
	for _, g := range given {
		labelNames[g.Name] = true
	}
	for _, m := range matches {
		labelNames[m.Unknown.Name] = true
	}

	placed := map[string]bool{root.Name: true}
	var remaining []string
	for name := range labelNames {
		if name != root.Name {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)

	n := len(matches)
	if n == 0 {
		n = 1
	}
	globalCap := n * n
	attempts := 0

	var out []spec.Match
	for len(remaining) > 0 {
		var next []string
		progressed := false
		for _, name := range remaining {
			attempts++
			if attempts > globalCap {
				return nil, nil, false
			}

			var bound *edge
			if e, ok := byChild[name]; ok && placed[e.Parent] {
				b := e
				bound = &b
			} else {
				for _, e := range edges {
					if e.Parent == name && placed[e.Child] {
						f := e.flipEdge()
						bound = &f
						break
					}
				}
			}
			if bound == nil {
				next = append(next, name)
				continue
			}

			conds := []spec.Condition{spec.PathCondition{
				RolesLeft: bound.RolesLeft, LabelRight: bound.Parent, RolesRight: bound.RolesRight,
			}}
			conds = append(conds, bound.Extra...)
			if referencesFreshSuccessor(conds, root.Name) {
				return nil, nil, false
			}
			out = append(out, spec.Match{Unknown: spec.Label{Name: name, Type: ""}, Conditions: conds})
			placed[name] = true
			progressed = true
		}
		if !progressed {
			return nil, nil, false
		}
		remaining = next
	}

	types := map[string]string{}
	for _, g := range given {
		types[g.Name] = g.Type
	}
	for _, m := range matches {
		types[m.Unknown.Name] = m.Unknown.Type
	}
	for i, m := range out {
		out[i].Unknown.Type = types[m.Unknown.Name]
	}
	return out, rootConds, true
}

// referencesFreshSuccessor reports whether conds contains, anywhere
// (including inside nested existential matches), a Path condition of the
// exact shape spec.md §4.5 step 4 discards: LabelRight==rootName with no
// RolesRight and a non-empty RolesLeft — a walk that demands successors
// of a fact that, being newly created, cannot have any yet.
func referencesFreshSuccessor(conds []spec.Condition, rootName string) bool {
	for _, c := range conds {
		switch cc := c.(type) {
		case spec.PathCondition:
			if cc.LabelRight == rootName && len(cc.RolesRight) == 0 && len(cc.RolesLeft) > 0 {
				return true
			}
		case spec.ExistentialCondition:
			for _, m := range cc.Matches {
				if referencesFreshSuccessor(m.Conditions, rootName) {
					return true
				}
			}
		}
	}
	return false
}
