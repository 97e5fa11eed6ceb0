package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpecification_IsIdentity(t *testing.T) {
	s := &Specification{Projection: CompositeProjection{}}
	require.True(t, s.IsIdentity())

	withMatch := &Specification{
		Matches:    []Match{{Unknown: Label{Name: "a"}}},
		Projection: CompositeProjection{},
	}
	require.False(t, withMatch.IsIdentity())

	nonEmptyComposite := &Specification{
		Projection: CompositeProjection{Components: []NamedComponent{
			{Name: "a", Projection: FactProjection{Label: "a"}},
		}},
	}
	require.False(t, nonEmptyComposite.IsIdentity())

	nonComposite := &Specification{Projection: FactProjection{Label: "a"}}
	require.False(t, nonComposite.IsIdentity())
}

func TestSpecification_Clone(t *testing.T) {
	s := &Specification{
		Given: []Given{{Name: "office", Type: "Office"}},
		Matches: []Match{
			{Unknown: Label{Name: "a", Type: "Office"}, Conditions: []Condition{
				PathCondition{LabelRight: "office"},
			}},
		},
		Projection: FactProjection{Label: "a"},
	}

	clone := s.Clone()
	require.Equal(t, s.Given, clone.Given)
	require.Equal(t, s.Matches, clone.Matches)
	require.Equal(t, s.Projection, clone.Projection)

	// Mutating the clone's slices must not alias the original's backing
	// arrays.
	clone.Given[0].Name = "mutated"
	require.Equal(t, "office", s.Given[0].Name)

	clone.Matches[0].Conditions[0] = PathCondition{LabelRight: "mutated"}
	require.Equal(t, "office", s.Matches[0].Conditions[0].(PathCondition).LabelRight)
}

// TestAllLabels_WalksGivenLevelExistential reproduces the pkg/ruletext
// given-level "!E {...}" construct (parser.go's parseGivens): a Given's own
// Conditions can carry nested existential Matches whose unknowns must be
// visible to AllLabels the same way a match-level existential's are.
func TestAllLabels_WalksGivenLevelExistential(t *testing.T) {
	s := &Specification{
		Given: []Given{
			{
				Name: "office",
				Type: "Office",
				Conditions: []Condition{
					ExistentialCondition{
						Exists: false,
						Matches: []Match{
							{Unknown: Label{Name: "c", Type: "Office.Closed"}, Conditions: []Condition{
								PathCondition{LabelRight: "office"},
							}},
						},
					},
				},
			},
		},
		Projection: FactProjection{Label: "office"},
	}

	labels := AllLabels(s)
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	require.Contains(t, names, "office")
	require.Contains(t, names, "c")
}

func TestAllLabels_WalksMatchLevelExistentialAndNestedProjection(t *testing.T) {
	s := &Specification{
		Given: []Given{{Name: "office", Type: "Office"}},
		Matches: []Match{
			{Unknown: Label{Name: "closed", Type: "Office.Closed"}, Conditions: []Condition{
				ExistentialCondition{
					Exists: false,
					Matches: []Match{
						{Unknown: Label{Name: "c", Type: "Office.Closed"}, Conditions: []Condition{
							PathCondition{LabelRight: "office"},
						}},
					},
				},
			}},
		},
		Projection: CompositeProjection{Components: []NamedComponent{
			{Name: "nested", Projection: NestedProjection{
				Matches:    []Match{{Unknown: Label{Name: "n", Type: "Note"}}},
				Projection: FactProjection{Label: "n"},
			}},
		}},
	}

	labels := AllLabels(s)
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	require.Contains(t, names, "office")
	require.Contains(t, names, "closed")
	require.Contains(t, names, "c")
	require.Contains(t, names, "n")
}

func TestReferencedLabels(t *testing.T) {
	p := CompositeProjection{Components: []NamedComponent{
		{Name: "a", Projection: FactProjection{Label: "x"}},
		{Name: "b", Projection: FieldProjection{Label: "y", Field: "name"}},
		{Name: "c", Projection: HashProjection{Label: "z"}},
		{Name: "d", Projection: NestedProjection{
			Matches:    []Match{{Unknown: Label{Name: "n"}}},
			Projection: FactProjection{Label: "n"},
		}},
	}}

	require.ElementsMatch(t, []string{"x", "y", "z", "n"}, ReferencedLabels(p))
}
