// Package run implements the Specification Runner (spec.md §4.2): the
// direct interpreter that walks a FactSource to produce projected results,
// without compiling to a query plan.
package run

import (
	"context"

	"github.com/sigilrun/sigilgraph/pkg/fact"
)

// FactSource is the read-side external collaborator (spec.md §6.1) the
// Runner consumes. Every method suspends at a clear cooperative scheduling
// point, per spec.md §5; implementations may be in-memory or
// storage-backed.
type FactSource interface {
	// FindFact returns the fact identified by ref, or (nil, false) if it
	// is not present. A caller that requires the fact to exist wraps the
	// miss as sigilerr.ErrUnknownFact.
	FindFact(ctx context.Context, ref fact.Reference) (*fact.Fact, bool, error)

	// Predecessors returns the references held under roleName on the fact
	// identified by ref, filtered to those whose type equals
	// predecessorType (a role is fixed to exactly one predecessor type by
	// the Model, but a defensive filter guards against a source that
	// stores heterogeneous data).
	Predecessors(ctx context.Context, ref fact.Reference, roleName, predecessorType string) ([]fact.Reference, error)

	// Successors returns every reference whose predecessor edge under
	// roleName points at ref, filtered to successorType.
	Successors(ctx context.Context, ref fact.Reference, roleName, successorType string) ([]fact.Reference, error)

	// Hydrate produces the projection-ready shape for ref: its fields plus
	// identity. Returns ErrUnknownFact-classified error if absent.
	Hydrate(ctx context.Context, ref fact.Reference) (*fact.Fact, error)
}
