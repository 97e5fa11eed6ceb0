package plan

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// nestedSpec projects, for each Root r, the hash of r plus a "successors"
// list: a nested specification-projection over every IntegrationTest.Successor
// bound to r.
func nestedSpec() *spec.Specification {
	return &spec.Specification{
		Given: []spec.Given{{Name: "r", Type: "Root"}},
		Projection: spec.CompositeProjection{Components: []spec.NamedComponent{
			{Name: "hash", Projection: spec.HashProjection{Label: "r"}},
			{Name: "successors", Projection: spec.NestedProjection{
				Matches: []spec.Match{{
					Unknown: spec.Label{Name: "s", Type: "IntegrationTest.Successor"},
					Conditions: []spec.Condition{
						spec.PathCondition{
							RolesLeft:  []spec.Role{{Name: "predecessor", PredecessorType: "Root"}},
							LabelRight: "r",
						},
					},
				}},
				Projection: spec.FieldProjection{Label: "s", Field: "note"},
			}},
		}},
	}
}

func TestBuildTreeAndExecute(t *testing.T) {
	schema := newFakeSchema().
		withType("Root", 11).
		withType("IntegrationTest.Successor", 22).
		withRole("IntegrationTest.Successor", "predecessor", 33)

	tree, ok, err := BuildTree(context.Background(), nestedSpec(), schema)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, tree.Children, "successors")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rootData, err := json.Marshal(map[string]any{"kind": "root"})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT f1.hash, f1.data FROM fact f1").
		WillReturnRows(sqlmock.NewRows([]string{"hash", "data"}).AddRow("root-hash", rootData))

	childData, err := json.Marshal(map[string]any{"note": "hello"})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT f1.hash, f1.data, f2.hash, f2.data FROM fact f1").
		WillReturnRows(sqlmock.NewRows([]string{"hash", "data", "hash", "data"}).
			AddRow("root-hash", rootData, "succ-hash", childData))

	starts := map[string]fact.Reference{"r": {Type: "Root", Hash: "root-hash"}}
	results, err := ExecuteTree(context.Background(), db, tree, starts)
	require.NoError(t, err)
	require.Len(t, results, 1)

	obj, ok := results[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "root-hash", obj["hash"])
	successors, ok := obj["successors"].([]any)
	require.True(t, ok)
	require.Equal(t, []any{"hello"}, successors)

	require.NoError(t, mock.ExpectationsWereMet())
}
