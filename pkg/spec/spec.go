// Package spec defines the Specification algebra: the immutable algebraic
// data of givens, matches, conditions, and projections described in
// spec.md §3. Values produced by this package are constructed once (by a
// fluent DSL external to this module, per spec.md §9's design note) and
// never mutated thereafter; the Validator, Runner, Planner, and Inverter
// all treat Specification trees as read-only.
package spec

// Role is a named, type-declared edge slot: the role name plus the
// predecessor type the Model declares for it at the point the role was
// referenced. Carrying the type alongside the name lets Path conditions be
// evaluated without a second Model lookup at walk time.
type Role struct {
	Name            string
	PredecessorType string
}

// Given is a labeled input position: a name, its fact type, and any
// existential conditions that must hold of the supplied start fact for the
// given to be satisfied.
type Given struct {
	Name       string
	Type       string
	Conditions []Condition
}

// Match binds an Unknown label to facts reachable from earlier labels in
// scope, filtered by Conditions. The first Condition of every Match that
// has Conditions must be a Path condition that binds the unknown, and
// every non-first Match in a scope must have at least one Condition (see
// spec.md §4.1).
type Match struct {
	Unknown    Label
	Conditions []Condition
}

// Label names a position in a Specification: a given or a match's unknown.
type Label struct {
	Name string
	Type string
}

// Condition is the closed sum type of match/given filters: Path or
// Existential. Implementations are unexported so the set is exhaustive —
// spec.md §9 requires new tags can't silently bypass a type switch.
type Condition interface {
	conditionTag()
}

// PathCondition asserts that walking RolesLeft (as predecessor steps) from
// the match's unknown equals walking RolesRight (as predecessor steps)
// from LabelRight.
type PathCondition struct {
	RolesLeft  []Role
	LabelRight string
	RolesRight []Role
}

func (PathCondition) conditionTag() {}

// ExistentialCondition is a nested sub-specification; it is satisfied when
// the inner Matches are non-empty (Exists == true) or empty (Exists ==
// false), evaluated against the current tuple.
type ExistentialCondition struct {
	Exists  bool
	Matches []Match
}

func (ExistentialCondition) conditionTag() {}

// Projection is the closed sum type of result shapes: Composite (a named
// list of sub-projections), Fact (a bare fact reference by label), Field
// (a scalar field of a label's fact), or Hash (a label's content hash).
type Projection interface {
	projectionTag()
}

// CompositeProjection is an ordered list of named components. Each
// component is itself a Projection — either singular (Fact/Field/Hash) or
// a NestedProjection wrapping a further specification-shaped query rooted
// at the enclosing tuple.
type CompositeProjection struct {
	Components []NamedComponent
}

func (CompositeProjection) projectionTag() {}

// NamedComponent is one field of a CompositeProjection's result object.
type NamedComponent struct {
	Name       string
	Projection Projection
}

// NestedProjection is a specification-shaped projection component: it adds
// further Matches (scoped after the enclosing Specification's own matches)
// and its own Projection over the extended tuple, producing one nested
// result slice per enclosing tuple.
type NestedProjection struct {
	Matches    []Match
	Projection Projection
}

func (NestedProjection) projectionTag() {}

// FactProjection yields the fact reference bound to Label.
type FactProjection struct {
	Label string
}

func (FactProjection) projectionTag() {}

// FieldProjection yields a scalar field of the fact bound to Label.
type FieldProjection struct {
	Label string
	Field string
}

func (FieldProjection) projectionTag() {}

// HashProjection yields the content hash of the fact bound to Label.
type HashProjection struct {
	Label string
}

func (HashProjection) projectionTag() {}

// Specification is the full immutable query: an ordered list of Givens, an
// ordered list of top-level Matches, and a Projection over the resulting
// tuple. Specification values are produced once and must not be mutated;
// every transformation in this module (Validator aside, which only reads)
// returns a new value.
type Specification struct {
	Given      []Given
	Matches    []Match
	Projection Projection
}

// IsIdentity reports whether s is the identity specification: no matches
// and an empty composite projection. The Validator's connectivity check
// exempts this shape from the "every label must be reachable" rule (see
// spec.md §4.1).
func (s *Specification) IsIdentity() bool {
	if len(s.Matches) != 0 {
		return false
	}
	comp, ok := s.Projection.(CompositeProjection)
	return ok && len(comp.Components) == 0
}

// Clone returns a deep copy of s. Matches/Conditions/Projection trees are
// immutable once built, but Clone is provided for transformations (the
// Inverter's shake-tree in particular) that need to rearrange slices
// without aliasing the original's backing arrays.
func (s *Specification) Clone() *Specification {
	out := &Specification{
		Given:      append([]Given(nil), s.Given...),
		Matches:    cloneMatches(s.Matches),
		Projection: s.Projection,
	}
	return out
}

func cloneMatches(ms []Match) []Match {
	out := make([]Match, len(ms))
	for i, m := range ms {
		out[i] = Match{
			Unknown:    m.Unknown,
			Conditions: append([]Condition(nil), m.Conditions...),
		}
	}
	return out
}

// AllLabels returns every label defined anywhere in s: givens, top-level
// match unknowns, and unknowns nested inside existential conditions and
// nested projections, in a stable depth-first order.
func AllLabels(s *Specification) []Label {
	var out []Label
	for _, g := range s.Given {
		out = append(out, Label{Name: g.Name, Type: g.Type})
		out = append(out, labelsFromGivenConditions(g.Conditions)...)
	}
	out = append(out, labelsFromMatches(s.Matches)...)
	out = append(out, labelsFromProjection(s.Projection)...)
	return out
}

func labelsFromGivenConditions(conds []Condition) []Label {
	var out []Label
	for _, c := range conds {
		if ex, ok := c.(ExistentialCondition); ok {
			out = append(out, labelsFromMatches(ex.Matches)...)
		}
	}
	return out
}

func labelsFromMatches(ms []Match) []Label {
	var out []Label
	for _, m := range ms {
		out = append(out, m.Unknown)
		for _, c := range m.Conditions {
			if ex, ok := c.(ExistentialCondition); ok {
				out = append(out, labelsFromMatches(ex.Matches)...)
			}
		}
	}
	return out
}

func labelsFromProjection(p Projection) []Label {
	switch t := p.(type) {
	case CompositeProjection:
		var out []Label
		for _, c := range t.Components {
			out = append(out, labelsFromProjection(c.Projection)...)
		}
		return out
	case NestedProjection:
		var out []Label
		out = append(out, labelsFromMatches(t.Matches)...)
		out = append(out, labelsFromProjection(t.Projection)...)
		return out
	default:
		return nil
	}
}

// ReferencedLabels returns the set of labels a Projection reads directly
// (Fact/Field/Hash leaves), not counting labels only introduced by a
// NestedProjection's own Matches (those are internal to the nested scope).
func ReferencedLabels(p Projection) []string {
	switch t := p.(type) {
	case CompositeProjection:
		var out []string
		for _, c := range t.Components {
			out = append(out, ReferencedLabels(c.Projection)...)
		}
		return out
	case NestedProjection:
		return ReferencedLabels(t.Projection)
	case FactProjection:
		return []string{t.Label}
	case FieldProjection:
		return []string{t.Label}
	case HashProjection:
		return []string{t.Label}
	default:
		return nil
	}
}
