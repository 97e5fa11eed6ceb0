package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

var (
	rootRef = fact.Reference{Type: "Root", Hash: "r1"}
	succRef = fact.Reference{Type: "Successor", Hash: "s1"}
)

func successorSpec() *spec.Specification {
	return &spec.Specification{
		Given: []spec.Given{{Name: "r", Type: "Root"}},
		Matches: []spec.Match{{
			Unknown: spec.Label{Name: "s", Type: "Successor"},
			Conditions: []spec.Condition{spec.PathCondition{
				RolesLeft:  []spec.Role{{Name: "predecessor", PredecessorType: "Root"}},
				LabelRight: "r",
			}},
		}},
		Projection: spec.FactProjection{Label: "s"},
	}
}

func TestStore_SaveIsIdempotentAndReportsOnlyNewFacts(t *testing.T) {
	s := New()
	ctx := context.Background()

	root := &fact.Fact{Type: "Root", Hash: "r1"}
	fresh, err := s.Save(ctx, []*fact.Fact{root})
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	fresh, err = s.Save(ctx, []*fact.Fact{root})
	require.NoError(t, err)
	require.Empty(t, fresh, "saving the same content-addressed fact again reports nothing new")
}

func TestStore_ReadWalksSuccessorEdge(t *testing.T) {
	s := New()
	ctx := context.Background()

	root := &fact.Fact{Type: "Root", Hash: "r1"}
	succ := &fact.Fact{Type: "Successor", Hash: "s1", Predecessors: fact.Predecessors{
		"predecessor": {rootRef},
	}}
	_, err := s.Save(ctx, []*fact.Fact{root, succ})
	require.NoError(t, err)

	results, err := s.Read(ctx, successorSpec(), []fact.Reference{rootRef})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, succRef, results[0].Result)
}

func TestStore_FeedPaginatesByBookmark(t *testing.T) {
	s := New()
	ctx := context.Background()

	root := &fact.Fact{Type: "Root", Hash: "r1"}
	succ1 := &fact.Fact{Type: "Successor", Hash: "s1", Predecessors: fact.Predecessors{"predecessor": {rootRef}}}
	succ2 := &fact.Fact{Type: "Successor", Hash: "s2", Predecessors: fact.Predecessors{"predecessor": {rootRef}}}
	_, err := s.Save(ctx, []*fact.Fact{root, succ1, succ2})
	require.NoError(t, err)

	starts := map[string]fact.Reference{"r": rootRef}
	page1, err := s.Feed(ctx, successorSpec(), starts, "", 1)
	require.NoError(t, err)
	require.Len(t, page1.Tuples, 1)
	require.NotEmpty(t, page1.Bookmark)

	page2, err := s.Feed(ctx, successorSpec(), starts, page1.Bookmark, 1)
	require.NoError(t, err)
	require.Len(t, page2.Tuples, 1)
	require.NotEqual(t, page1.Tuples[0].Facts["s"].Hash, page2.Tuples[0].Facts["s"].Hash)

	page3, err := s.Feed(ctx, successorSpec(), starts, page2.Bookmark, 1)
	require.NoError(t, err)
	require.Empty(t, page3.Tuples, "no further successors beyond the second page")
}

func TestStore_LoadAndWhichExist(t *testing.T) {
	s := New()
	ctx := context.Background()
	root := &fact.Fact{Type: "Root", Hash: "r1"}
	_, err := s.Save(ctx, []*fact.Fact{root})
	require.NoError(t, err)

	missing := fact.Reference{Type: "Root", Hash: "missing"}
	loaded, err := s.Load(ctx, []fact.Reference{rootRef, missing})
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	present, err := s.WhichExist(ctx, []fact.Reference{rootRef, missing})
	require.NoError(t, err)
	require.Equal(t, []fact.Reference{rootRef}, present)
}

func TestStore_BookmarkRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	got, err := s.LoadBookmark(ctx, "feed-1")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.SaveBookmark(ctx, "feed-1", "42"))
	got, err = s.LoadBookmark(ctx, "feed-1")
	require.NoError(t, err)
	require.Equal(t, "42", got)
}
