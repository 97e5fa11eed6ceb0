package plan

import (
	"context"
	"fmt"

	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// Compile walks s exactly as pkg/spec/run.Runner does — rolesRight forward
// as predecessor edges, rolesLeft in reverse as successor edges — but
// emits join/edge descriptions instead of fetching facts. ok is false when
// the walk references a type or role the schema has never seen; the
// Specification is then unsatisfiable and the caller should treat it as
// producing no results without surfacing an error.
func Compile(ctx context.Context, s *spec.Specification, schema Schema) (desc *QueryDescription, ok bool, err error) {
	b := &builder{ctx: ctx, schema: schema, labelIndex: map[string]int{}, labelType: map[string]string{}}
	b.edgeSink = &b.topEdges
	b.notExistsSink = &b.topNotExists

	for _, g := range s.Given {
		if err := b.compileGiven(g); err != nil {
			if _, isUnsat := err.(unsatisfiable); isUnsat {
				return nil, false, nil
			}
			return nil, false, err
		}
	}

	for _, m := range s.Matches {
		if err := b.compileMatch(m); err != nil {
			if _, isUnsat := err.(unsatisfiable); isUnsat {
				return nil, false, nil
			}
			return nil, false, err
		}
	}

	outputs := make([]Output, 0, len(b.labelIndex))
	for _, g := range s.Given {
		outputs = append(outputs, Output{Label: g.Name, Type: g.Type, FactIndex: b.labelIndex[g.Name]})
	}
	for _, m := range s.Matches {
		outputs = append(outputs, Output{Label: m.Unknown.Name, Type: m.Unknown.Type, FactIndex: b.labelIndex[m.Unknown.Name]})
	}

	return &QueryDescription{
		Inputs:              b.inputs,
		Facts:               b.facts,
		Edges:               b.topEdges,
		NotExistsConditions: b.topNotExists,
		Outputs:             outputs,
		Parameters:          b.params,
	}, true, nil
}

// unsatisfiable marks a compile-time failure that should discard the plan
// rather than surface as an error (spec.md §4.3).
type unsatisfiable struct{ reason string }

func (u unsatisfiable) Error() string { return u.reason }

type builder struct {
	ctx    context.Context
	schema Schema

	inputs []Input
	facts  []FactDescription
	params []any

	topEdges     []EdgeDescription
	topNotExists []NotExistsCondition

	edgeSink      *[]EdgeDescription
	notExistsSink *[]NotExistsCondition

	labelIndex map[string]int
	labelType  map[string]string
}

func (b *builder) newFact(factType string) int {
	idx := len(b.facts)
	b.facts = append(b.facts, FactDescription{FactIndex: idx, Type: factType})
	return idx
}

func (b *builder) addParam(v any) int {
	b.params = append(b.params, v)
	return len(b.params) - 1
}

func (b *builder) addEdge(predecessorIdx, successorIdx, roleParam int) {
	*b.edgeSink = append(*b.edgeSink, EdgeDescription{
		EdgeIndex:            len(*b.edgeSink),
		PredecessorFactIndex: predecessorIdx,
		SuccessorFactIndex:   successorIdx,
		RoleParameter:        roleParam,
	})
}

func (b *builder) typeParam(factType string) (int, error) {
	id, ok, err := b.schema.FactTypeID(b.ctx, factType)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, unsatisfiable{fmt.Sprintf("unknown fact type %q", factType)}
	}
	return b.addParam(id), nil
}

func (b *builder) roleParam(definingType, roleName string) (int, error) {
	id, ok, err := b.schema.RoleID(b.ctx, definingType, roleName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, unsatisfiable{fmt.Sprintf("unknown role %q on %q", roleName, definingType)}
	}
	return b.addParam(id), nil
}

// compileGiven allocates the given's fact alias and reserves parameter
// slots for its type id (known now) and its start hash (known only at
// execution time).
func (b *builder) compileGiven(g spec.Given) error {
	idx := b.newFact(g.Type)
	b.labelIndex[g.Name] = idx
	b.labelType[g.Name] = g.Type

	typeParam, err := b.typeParam(g.Type)
	if err != nil {
		return err
	}
	hashParam := b.addParam(inputPlaceholder{Label: g.Name})

	b.inputs = append(b.inputs, Input{
		Label:             g.Name,
		FactIndex:         idx,
		FactTypeParameter: typeParam,
		FactHashParameter: hashParam,
	})

	for _, c := range g.Conditions {
		if err := b.compileCondition(g.Name, c); err != nil {
			return err
		}
	}
	return nil
}

// compileMatch binds m.Unknown via its first (binding) Path condition,
// then applies every remaining condition as a filter against the now-
// bound label.
func (b *builder) compileMatch(m spec.Match) error {
	if len(m.Conditions) == 0 {
		return unsatisfiable{fmt.Sprintf("match %q has no binding condition", m.Unknown.Name)}
	}
	bindPath, ok := m.Conditions[0].(spec.PathCondition)
	if !ok {
		return unsatisfiable{fmt.Sprintf("match %q's first condition is not a Path", m.Unknown.Name)}
	}

	idx, err := b.compilePath(m.Unknown.Name, m.Unknown.Type, bindPath, true)
	if err != nil {
		return err
	}
	b.labelIndex[m.Unknown.Name] = idx
	b.labelType[m.Unknown.Name] = m.Unknown.Type

	for _, c := range m.Conditions[1:] {
		if err := b.compileCondition(m.Unknown.Name, c); err != nil {
			return err
		}
	}
	return nil
}

// compileCondition dispatches a non-binding Condition: a Path is applied
// as a filter against owner's already-bound alias; a positive Existential
// is inlined into the enclosing query; a negative Existential allocates a
// NotExistsCondition subtree (spec.md §4.3).
func (b *builder) compileCondition(owner string, c spec.Condition) error {
	switch cc := c.(type) {
	case spec.PathCondition:
		_, err := b.compilePath(owner, b.labelType[owner], cc, false)
		return err
	case spec.ExistentialCondition:
		if cc.Exists {
			return b.compileMatchList(cc.Matches)
		}
		return b.compileNegativeExistential(cc.Matches)
	default:
		return unsatisfiable{"unrecognized condition tag"}
	}
}

func (b *builder) compileMatchList(matches []spec.Match) error {
	for _, m := range matches {
		if err := b.compileMatch(m); err != nil {
			return err
		}
	}
	return nil
}

// compileNegativeExistential compiles matches into a fresh edge/not-exists
// sink so their joins render inside a correlated NOT EXISTS subquery,
// without contributing Outputs at the enclosing level.
func (b *builder) compileNegativeExistential(matches []spec.Match) error {
	nc := NotExistsCondition{}

	savedEdgeSink, savedNotExistsSink := b.edgeSink, b.notExistsSink
	b.edgeSink = &nc.Edges
	b.notExistsSink = &nc.NotExistsConditions

	err := b.compileMatchList(matches)

	nc.Edges = *b.edgeSink
	nc.NotExistsConditions = *b.notExistsSink
	b.edgeSink, b.notExistsSink = savedEdgeSink, savedNotExistsSink

	if err != nil {
		return err
	}
	*b.notExistsSink = append(*b.notExistsSink, nc)
	return nil
}

// compilePath walks rolesRight forward from labelRight (predecessor
// edges), then rolesLeft in reverse as successor edges from that anchor,
// mirroring run.Runner.bindUnknown/evalPathFilter exactly. When
// allocateUnbound is true the final hop allocates a new fact alias for
// owner (the Path is the match's binding condition); otherwise the final
// hop targets owner's existing alias, turning the walk into an equi-join
// rather than a fresh fact.
func (b *builder) compilePath(owner, ownerType string, p spec.PathCondition, allocateUnbound bool) (int, error) {
	anchorIdx, ok := b.factIndexOf(p.LabelRight)
	if !ok {
		return 0, unsatisfiable{fmt.Sprintf("label %q not bound", p.LabelRight)}
	}
	anchorType := b.labelType[p.LabelRight]

	for _, role := range p.RolesRight {
		predIdx := b.newFact(role.PredecessorType)
		roleParam, err := b.roleParam(anchorType, role.Name)
		if err != nil {
			return 0, err
		}
		b.addEdge(predIdx, anchorIdx, roleParam)
		anchorIdx, anchorType = predIdx, role.PredecessorType
	}

	n := len(p.RolesLeft)
	if n == 0 {
		if allocateUnbound {
			return anchorIdx, nil
		}
		ownerIdx, ok := b.factIndexOf(owner)
		if !ok || ownerIdx != anchorIdx {
			return 0, unsatisfiable{fmt.Sprintf("filter condition on %q cannot be expressed as a join", owner)}
		}
		return ownerIdx, nil
	}

	cur := anchorIdx
	for j := n - 1; j >= 0; j-- {
		role := p.RolesLeft[j]
		stepType := ownerType
		if j > 0 {
			stepType = p.RolesLeft[j-1].PredecessorType
		}

		var nextIdx int
		if j == 0 && !allocateUnbound {
			idx, ok := b.factIndexOf(owner)
			if !ok {
				return 0, unsatisfiable{fmt.Sprintf("label %q not bound", owner)}
			}
			nextIdx = idx
		} else {
			nextIdx = b.newFact(stepType)
		}

		roleParam, err := b.roleParam(stepType, role.Name)
		if err != nil {
			return 0, err
		}
		b.addEdge(cur, nextIdx, roleParam)
		cur = nextIdx
	}
	return cur, nil
}

// factIndexOf resolves a label to its fact alias, searching both givens
// and matches already compiled.
func (b *builder) factIndexOf(label string) (int, bool) {
	idx, ok := b.labelIndex[label]
	return idx, ok
}
