package validate

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// officeClosedSpec mirrors spec.md §8 scenario 1: given an Office, find it
// unless it has been closed.
func officeClosedSpec() *spec.Specification {
	return &spec.Specification{
		Given: []spec.Given{{Name: "office", Type: "Office"}},
		Matches: []spec.Match{
			{
				Unknown: spec.Label{Name: "it", Type: "Office"},
				Conditions: []spec.Condition{
					spec.PathCondition{LabelRight: "office"},
					spec.ExistentialCondition{
						Exists: false,
						Matches: []spec.Match{
							{
								Unknown: spec.Label{Name: "c", Type: "Office.Closed"},
								Conditions: []spec.Condition{spec.PathCondition{
									RolesLeft:  []spec.Role{{Name: "office", PredecessorType: "Office"}},
									LabelRight: "it",
								}},
							},
						},
					},
				},
			},
		},
		Projection: spec.FactProjection{Label: "office"},
	}
}

func TestValidate_WellFormedSpecificationIsValid(t *testing.T) {
	r := New().Validate(officeClosedSpec())
	require.True(t, r.Valid)
	require.Empty(t, r.Errors)
}

func TestValidate_MissingConditionsOnNonFirstMatch(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "office", Type: "Office"}},
		Matches: []spec.Match{
			{Unknown: spec.Label{Name: "a", Type: "Office"}, Conditions: []spec.Condition{
				spec.PathCondition{LabelRight: "office"},
			}},
			{Unknown: spec.Label{Name: "b", Type: "Office"}}, // non-first, no conditions
		},
		Projection: spec.FactProjection{Label: "b"},
	}

	r := New().Validate(s)
	require.False(t, r.Valid)
	require.Contains(t, codes(r), "MISSING_CONDITIONS")
}

func TestValidate_FirstConditionNotPath(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "office", Type: "Office"}},
		Matches: []spec.Match{
			{Unknown: spec.Label{Name: "a", Type: "Office"}, Conditions: []spec.Condition{
				spec.PathCondition{LabelRight: "office"},
			}},
			{Unknown: spec.Label{Name: "b", Type: "Office"}, Conditions: []spec.Condition{
				spec.ExistentialCondition{Exists: true},
			}},
		},
		Projection: spec.FactProjection{Label: "b"},
	}

	r := New().Validate(s)
	require.False(t, r.Valid)
	require.Contains(t, codes(r), "FIRST_CONDITION_NOT_PATH")
}

func TestValidate_LabelOutOfScope(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "office", Type: "Office"}},
		Matches: []spec.Match{
			{Unknown: spec.Label{Name: "a", Type: "Office"}, Conditions: []spec.Condition{
				spec.PathCondition{LabelRight: "nonexistent"},
			}},
		},
		Projection: spec.FactProjection{Label: "a"},
	}

	r := New().Validate(s)
	require.False(t, r.Valid)
	require.Contains(t, codes(r), "LABEL_OUT_OF_SCOPE")
}

// TestValidate_GivenLevelExistentialIsWalked reproduces a given-level
// "!E {...}" existential the way pkg/ruletext/parser.go parses one
// (parseGivens's bracketed Conditions): the nested match's own
// MISSING_CONDITIONS/FIRST_CONDITION_NOT_PATH/LABEL_OUT_OF_SCOPE violations
// must surface even though they never appear inside s.Matches.
func TestValidate_GivenLevelExistentialIsWalked(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{
			{
				Name: "office",
				Type: "Office",
				Conditions: []spec.Condition{
					spec.ExistentialCondition{
						Exists: false,
						Matches: []spec.Match{
							{Unknown: spec.Label{Name: "c", Type: "Office.Closed"}, Conditions: []spec.Condition{
								spec.PathCondition{LabelRight: "doesnotexist"},
							}},
						},
					},
				},
			},
		},
		Projection: spec.FactProjection{Label: "office"},
	}

	r := New().Validate(s)
	require.False(t, r.Valid)
	require.Contains(t, codes(r), "LABEL_OUT_OF_SCOPE")
}

// TestValidate_GivenLevelExistentialSeesOwnGivenName checks the positive
// case of the same construct: a nested match referencing the given's own
// name (the common "is this given closed" shape) is accepted.
func TestValidate_GivenLevelExistentialSeesOwnGivenName(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{
			{
				Name: "office",
				Type: "Office",
				Conditions: []spec.Condition{
					spec.ExistentialCondition{
						Exists: false,
						Matches: []spec.Match{
							{Unknown: spec.Label{Name: "c", Type: "Office.Closed"}, Conditions: []spec.Condition{
								spec.PathCondition{LabelRight: "office"},
							}},
						},
					},
				},
			},
		},
		Projection: spec.FactProjection{Label: "office"},
	}

	r := New().Validate(s)
	require.True(t, r.Valid)
}

// TestValidate_GivenLevelExistentialParticipatesInConnectivity exercises
// the DISCONNECTED check over the same construct: the nested match's
// unknown must count as reachable through the given it's attached to, even
// when the projection never mentions it by name.
func TestValidate_GivenLevelExistentialParticipatesInConnectivity(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{
			{
				Name: "office",
				Type: "Office",
				Conditions: []spec.Condition{
					spec.ExistentialCondition{
						Exists: false,
						Matches: []spec.Match{
							{Unknown: spec.Label{Name: "c", Type: "Office.Closed"}, Conditions: []spec.Condition{
								spec.PathCondition{LabelRight: "office"},
							}},
						},
					},
				},
			},
		},
		Projection: spec.FactProjection{Label: "office"},
	}

	v := &Validator{Mode: ConnectivityError}
	r := v.Validate(s)
	require.True(t, r.Valid, "given and its own existential's unknown share one component: %v", r.Errors)
}

// disconnectedSpec builds a specification with two label components: the
// given "office" plus a first match "stray" that (legally, since only
// non-first matches require conditions) carries no Path condition tying it
// back to "office", and a projection that only references "office" —
// spec.md §8 scenario 5.
func disconnectedSpec() *spec.Specification {
	return &spec.Specification{
		Given:      []spec.Given{{Name: "office", Type: "Office"}},
		Matches:    []spec.Match{{Unknown: spec.Label{Name: "stray", Type: "Office"}}},
		Projection: spec.FactProjection{Label: "office"},
	}
}

// TestValidate_DisconnectedProjectionScenario reproduces spec.md §8
// scenario 5: a label with no path back to the rest of the graph is
// rejected in error mode.
func TestValidate_DisconnectedProjectionScenario(t *testing.T) {
	v := &Validator{Mode: ConnectivityError}
	r := v.Validate(disconnectedSpec())
	require.False(t, r.Valid)
	require.Contains(t, codes(r), "DISCONNECTED")
}

func TestValidate_ConnectivityOffSkipsDisconnectedCheck(t *testing.T) {
	v := &Validator{Mode: ConnectivityOff}
	r := v.Validate(disconnectedSpec())
	require.True(t, r.Valid)
}

func TestValidate_ConnectivityWarnLogsButAccepts(t *testing.T) {
	var buf bytes.Buffer
	v := &Validator{Mode: ConnectivityWarn, Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	r := v.Validate(disconnectedSpec())
	require.True(t, r.Valid)
	require.Contains(t, buf.String(), "disconnected specification")
}

func TestValidate_IdentitySpecificationExemptFromConnectivity(t *testing.T) {
	s := &spec.Specification{
		Given:      []spec.Given{{Name: "office", Type: "Office"}},
		Projection: spec.CompositeProjection{},
	}

	v := New()
	r := v.Validate(s)
	require.True(t, r.Valid)
}

func TestValidateErr_DisconnectedClassifiesAsDisconnected(t *testing.T) {
	err := New().ValidateErr(disconnectedSpec())
	require.Error(t, err)
	require.ErrorIs(t, err, sigilerr.ErrDisconnectedSpecification)
}

// TestValidateErr_MalformedClassifiesAsMalformed uses ConnectivityOff so
// the only violation present is MISSING_CONDITIONS: with connectivity
// checking on, "b" (unreachable from "a") would also raise DISCONNECTED,
// and ValidateErr always classifies a mix as Disconnected (see its
// "for _, e := range r.Errors" precedence loop).
func TestValidateErr_MalformedClassifiesAsMalformed(t *testing.T) {
	s := &spec.Specification{
		Given: []spec.Given{{Name: "office", Type: "Office"}},
		Matches: []spec.Match{
			{Unknown: spec.Label{Name: "a", Type: "Office"}, Conditions: []spec.Condition{
				spec.PathCondition{LabelRight: "office"},
			}},
			{Unknown: spec.Label{Name: "b", Type: "Office"}},
		},
		Projection: spec.FactProjection{Label: "b"},
	}

	v := &Validator{Mode: ConnectivityOff}
	err := v.ValidateErr(s)
	require.Error(t, err)
	require.ErrorIs(t, err, sigilerr.ErrMalformedSpecification)
}

func TestValidateErr_ValidSpecificationReturnsNil(t *testing.T) {
	require.NoError(t, New().ValidateErr(officeClosedSpec()))
}

func codes(r *Result) []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Code
	}
	return out
}
