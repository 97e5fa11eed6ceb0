package split

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// officeRole is the role the zig-zag test walks: a predecessor step from
// an Employee or a President to its Office.
func officeRole() spec.Role {
	return spec.Role{Name: "office", PredecessorType: "Office"}
}

func TestSplit_NoPivotIsWhollyHead(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "o", Type: "Office"}},
		Matches: []spec.Match{{
			Unknown: spec.Label{Name: "it", Type: "Office"},
			Conditions: []spec.Condition{spec.PathCondition{
				LabelRight: "o",
			}},
		}},
		Projection: spec.CompositeProjection{},
	}

	r := Split(s)
	require.NotNil(t, r.Head)
	require.Nil(t, r.Tail)
	require.Equal(t, s.Matches, r.Head.Matches)
}

// TestSplit_ZigZagIntroducesSyntheticLabel reproduces spec.md §8 scenario
// 2: given Employee e, match President p via "p->office = e->office".
// Both RolesLeft and RolesRight on the pivot's sole path are non-empty, so
// the pivot itself is split at the boundary type (Office) via a synthetic
// label s1: head binds s1 from e, tail binds p from s1.
func TestSplit_ZigZagIntroducesSyntheticLabel(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "e", Type: "Employee"}},
		Matches: []spec.Match{{
			Unknown: spec.Label{Name: "p", Type: "President"},
			Conditions: []spec.Condition{spec.PathCondition{
				RolesLeft:  []spec.Role{officeRole()},
				LabelRight: "e",
				RolesRight: []spec.Role{officeRole()},
			}},
		}},
		Projection: spec.CompositeProjection{Components: []spec.NamedComponent{
			{Name: "president", Projection: spec.FactProjection{Label: "p"}},
		}},
	}

	r := Split(s)
	require.NotNil(t, r.Head)
	require.NotNil(t, r.Tail)

	require.Len(t, r.Head.Matches, 1)
	synthetic := r.Head.Matches[0]
	require.Equal(t, "s1", synthetic.Unknown.Name)
	require.Equal(t, "Office", synthetic.Unknown.Type)
	require.Len(t, synthetic.Conditions, 1)
	headPath, ok := synthetic.Conditions[0].(spec.PathCondition)
	require.True(t, ok)
	require.Equal(t, "e", headPath.LabelRight)
	require.Equal(t, []spec.Role{officeRole()}, headPath.RolesRight)
	require.Empty(t, headPath.RolesLeft)

	require.Len(t, r.Tail.Matches, 1)
	tailPivot := r.Tail.Matches[0]
	require.Equal(t, "p", tailPivot.Unknown.Name)
	require.Len(t, tailPivot.Conditions, 1)
	tailPath, ok := tailPivot.Conditions[0].(spec.PathCondition)
	require.True(t, ok)
	require.Equal(t, "s1", tailPath.LabelRight)
	require.Equal(t, []spec.Role{officeRole()}, tailPath.RolesLeft)
	require.Empty(t, tailPath.RolesRight)

	require.Len(t, r.Tail.Given, 1)
	require.Equal(t, spec.Given{Name: "s1", Type: "Office"}, r.Tail.Given[0])
}

// TestSplit_SuccessorBoundaryProjectsNeededLabels reproduces the
// pure-successor case: a pivot whose sole path has empty RolesRight splits
// at the match boundary rather than within the pivot, and head projects
// exactly the labels tail still needs.
func TestSplit_SuccessorBoundaryProjectsNeededLabels(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "r", Type: "Root"}},
		Matches: []spec.Match{
			{
				// Identity bind: "a" aliases "r" with no role walk at all,
				// so it does not itself qualify as a pivot.
				Unknown:    spec.Label{Name: "a", Type: "A"},
				Conditions: []spec.Condition{spec.PathCondition{LabelRight: "r"}},
			},
			{
				Unknown: spec.Label{Name: "b", Type: "B"},
				Conditions: []spec.Condition{spec.PathCondition{
					RolesLeft:  []spec.Role{{Name: "parent", PredecessorType: "A"}},
					LabelRight: "a",
				}},
			},
		},
		Projection: spec.CompositeProjection{Components: []spec.NamedComponent{
			{Name: "b", Projection: spec.FactProjection{Label: "b"}},
		}},
	}

	r := Split(s)
	require.NotNil(t, r.Head)
	require.NotNil(t, r.Tail)

	require.Len(t, r.Head.Matches, 1)
	require.Equal(t, "a", r.Head.Matches[0].Unknown.Name)

	comp, ok := r.Head.Projection.(spec.CompositeProjection)
	require.True(t, ok)
	require.Len(t, comp.Components, 1)
	require.Equal(t, "a", comp.Components[0].Name)

	require.Len(t, r.Tail.Given, 1)
	require.Equal(t, spec.Given{Name: "a", Type: "A"}, r.Tail.Given[0])
	require.Len(t, r.Tail.Matches, 1)
	require.Equal(t, "b", r.Tail.Matches[0].Unknown.Name)
}

func TestSplit_MultiplePathConditionsOnPivotIsUndefined(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "r", Type: "Root"}},
		Matches: []spec.Match{{
			Unknown: spec.Label{Name: "a", Type: "A"},
			Conditions: []spec.Condition{
				spec.PathCondition{RolesLeft: []spec.Role{{Name: "root"}}, LabelRight: "r"},
				spec.PathCondition{RolesLeft: []spec.Role{{Name: "root2"}}, LabelRight: "r"},
			},
		}},
		Projection: spec.CompositeProjection{},
	}

	r := Split(s)
	require.Nil(t, r.Head)
	require.NotNil(t, r.Tail)
	require.Equal(t, s.Matches, r.Tail.Matches)
}
