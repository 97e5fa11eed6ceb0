package plan

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// TestFeedSQL_OneSuccessorShape asserts the generated feed SQL and
// parameter order against spec.md §8 scenario 3's literal text.
func TestFeedSQL_OneSuccessorShape(t *testing.T) {
	schema := newFakeSchema().
		withType("Root", 11).
		withType("IntegrationTest.Successor", 22).
		withRole("IntegrationTest.Successor", "predecessor", 33)

	d, ok, err := Compile(context.Background(), successorSpec(), schema)
	require.NoError(t, err)
	require.True(t, ok)

	starts := map[string]fact.Reference{"r": {Type: "Root", Hash: "H"}}
	query, args, err := FeedSQL(d, starts, FeedOptions{Limit: 100})
	require.NoError(t, err)

	const want = "SELECT f2.hash, f2.fact_id FROM fact f1 JOIN edge e1 ON e1.predecessor_fact_id=f1.fact_id AND e1.role_id=$3 JOIN fact f2 ON f2.fact_id=e1.successor_fact_id WHERE f1.fact_type_id=$1 AND f1.hash=$2 ORDER BY f2.fact_id ASC LIMIT $4"
	require.Equal(t, want, query)
	require.Equal(t, []any{11, "H", 33, 100}, args)
}

func TestFeedSQL_NoNonGivenOutputsIsMalformed(t *testing.T) {
	schema := newFakeSchema().withType("Root", 11)
	s := &spec.Specification{
		Given:      []spec.Given{{Name: "r", Type: "Root"}},
		Projection: spec.CompositeProjection{},
	}
	d, ok, err := Compile(context.Background(), s, schema)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = FeedSQL(d, map[string]fact.Reference{"r": {Type: "Root", Hash: "H"}}, FeedOptions{Limit: 10})
	require.Error(t, err)
}

// TestFeedSQL_RunsAgainstMockDriver exercises the generated SQL through
// database/sql against a go-sqlmock connection, the same harness
// sql_ledger_test.go uses for the teacher's SQLLedger.
func TestFeedSQL_RunsAgainstMockDriver(t *testing.T) {
	schema := newFakeSchema().
		withType("Root", 11).
		withType("IntegrationTest.Successor", 22).
		withRole("IntegrationTest.Successor", "predecessor", 33)

	d, ok, err := Compile(context.Background(), successorSpec(), schema)
	require.NoError(t, err)
	require.True(t, ok)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	starts := map[string]fact.Reference{"r": {Type: "Root", Hash: "H"}}
	query, args, err := FeedSQL(d, starts, FeedOptions{Limit: 100})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"hash", "fact_id"}).AddRow("succ-hash", 42)
	mock.ExpectQuery("SELECT f2.hash, f2.fact_id FROM fact f1").WithArgs(args...).WillReturnRows(rows)

	got, err := db.QueryContext(context.Background(), query, args...)
	require.NoError(t, err)
	defer func() { _ = got.Close() }()

	require.True(t, got.Next())
	var hash string
	var factID int
	require.NoError(t, got.Scan(&hash, &factID))
	require.Equal(t, "succ-hash", hash)
	require.Equal(t, 42, factID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultSQL_Shape(t *testing.T) {
	schema := newFakeSchema().
		withType("Root", 11).
		withType("IntegrationTest.Successor", 22).
		withRole("IntegrationTest.Successor", "predecessor", 33)

	d, ok, err := Compile(context.Background(), successorSpec(), schema)
	require.NoError(t, err)
	require.True(t, ok)

	query, err := ResultSQL(d)
	require.NoError(t, err)
	require.Contains(t, query, "SELECT f1.hash, f1.data, f2.hash, f2.data")
	require.Contains(t, query, "WHERE f1.fact_type_id=$1 AND f1.hash=$2")
}
