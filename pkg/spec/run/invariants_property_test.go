//go:build property
// +build property

package run_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
	"github.com/sigilrun/sigilgraph/pkg/store/memstore"
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

// buildOfficeGraph seeds n offices, closing every office whose index
// appears in closedIdx, and returns the store plus every office reference
// in insertion order.
func buildOfficeGraph(t *testing.T, n int, closedIdx map[int]bool) (*memstore.Store, []fact.Reference) {
	t.Helper()
	s := memstore.New()
	offices := make([]fact.Reference, n)
	for i := 0; i < n; i++ {
		f := &fact.Fact{Type: "Office", Hash: idOf(i)}
		if _, err := s.Save(context.Background(), []*fact.Fact{f}); err != nil {
			t.Fatalf("seeding office %d: %v", i, err)
		}
		offices[i] = f.Reference()
	}
	for i := range closedIdx {
		if i < 0 || i >= n {
			continue
		}
		closed := &fact.Fact{
			Type:         "Office.Closed",
			Hash:         "closed-" + idOf(i),
			Predecessors: fact.Predecessors{"office": {offices[i]}},
		}
		if _, err := s.Save(context.Background(), []*fact.Fact{closed}); err != nil {
			t.Fatalf("closing office %d: %v", i, err)
		}
	}
	return s, offices
}

func idOf(i int) string {
	return "o" + string(rune('a'+i%26)) + string(rune('0'+(i/26)%10))
}

// TestFeedMonotonicity checks spec.md §8's feed monotonicity invariant
// directly against memstore.Feed: paging through with the bookmark from
// the previous call never repeats a tuple, and the walk eventually goes
// empty with a stable bookmark.
func TestFeedMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("feed pagination never repeats a tuple and terminates", prop.ForAll(
		func(n int, pageSize int) bool {
			n = 1 + n%20
			pageSize = 1 + pageSize%7

			s, offices := buildOfficeGraph(t, n, nil)
			sp := officeClosedSpec()
			ctx := context.Background()

			seen := map[string]bool{}
			bookmark := ""
			for pages := 0; pages < n+5; pages++ {
				page, err := s.Feed(ctx, sp, map[string]fact.Reference{"office": offices[0]}, bookmark, pageSize)
				if err != nil {
					return false
				}
				if len(page.Tuples) == 0 {
					return true
				}
				for _, tup := range page.Tuples {
					ref := tup.Facts["office"].Reference()
					if seen[ref.String()] {
						return false
					}
					seen[ref.String()] = true
				}
				if page.Bookmark == bookmark {
					return false
				}
				bookmark = page.Bookmark
			}
			return false
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestOfficeClosedNegativeExistential exercises spec.md §8 scenario 1
// exactly: an open office is found, a closed one is not, regardless of how
// many other offices (open or closed) share the store.
func TestOfficeClosedNegativeExistential(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("closed offices never appear, open offices always do", prop.ForAll(
		func(n int, closeTarget bool, noise int) bool {
			n = 2 + n%15
			closedIdx := map[int]bool{}
			if closeTarget {
				closedIdx[0] = true
			}
			if noise%2 == 0 && n > 1 {
				closedIdx[1] = true
			}

			s, offices := buildOfficeGraph(t, n, closedIdx)
			sp := officeClosedSpec()
			ctx := context.Background()

			results, err := run.New(s).Read(ctx, sp, []fact.Reference{offices[0]})
			if err != nil {
				return false
			}
			found := len(results) > 0
			return found == !closeTarget
		},
		gen.IntRange(0, 1000),
		gen.Bool(),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
