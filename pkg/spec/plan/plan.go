// Package plan implements the relational Query Planner (spec.md §4.3): it
// compiles a Specification against a storage schema of fact/edge tables
// into an immutable QueryDescription, then renders that description as
// parameterized SQL. The join-compilation walk mirrors
// pkg/spec/run.Runner's predecessor/successor duality exactly, so that a
// Specification read through the Runner and one read through the Planner
// agree on the same multiset of results.
package plan

import "context"

// Schema resolves the storage-backed identifiers the generated SQL joins
// on: the surrogate id fact_type.id and role.id carry in place of the
// textual type/role names the Specification AST uses. A type or role the
// schema has never seen makes the containing Specification unsatisfiable
// (Compile reports ok=false rather than an error: spec.md §4.3).
type Schema interface {
	FactTypeID(ctx context.Context, factType string) (int, bool, error)
	RoleID(ctx context.Context, definingType, roleName string) (int, bool, error)
}

// Input describes one given: the fact index it was bound to, and the
// indices into Parameters holding its type id (a compile-time constant)
// and its hash (a placeholder, substituted with the caller's start fact
// at execution time).
type Input struct {
	Label             string
	FactIndex         int
	FactTypeParameter int
	FactHashParameter int
}

// FactDescription names the type of one fact alias in the join.
type FactDescription struct {
	FactIndex int
	Type      string
}

// EdgeDescription is one predecessor/successor edge-table join: the fact
// alias on the predecessor side, the fact alias on the successor side,
// and the parameter index holding the role id the edge is filtered to.
type EdgeDescription struct {
	EdgeIndex            int
	PredecessorFactIndex int
	SuccessorFactIndex   int
	RoleParameter        int
}

// Output names one result column: a label, its declared type, and the
// fact alias to read hash/data from. Outputs is empty inside a
// NotExistsCondition subtree (spec.md §4.3: "labels emitted inside carry
// no outputs").
type Output struct {
	Label     string
	Type      string
	FactIndex int
}

// NotExistsCondition is one branch of a negative existential: its own
// edge list (rendered inside a correlated NOT EXISTS subquery) plus any
// further-nested negative branches.
type NotExistsCondition struct {
	Edges               []EdgeDescription
	NotExistsConditions []NotExistsCondition
}

// inputPlaceholder occupies a parameter slot reserved for a given's start
// hash, supplied only when the plan is executed, not when it is compiled.
type inputPlaceholder struct {
	Label string
}

// QueryDescription is the immutable compiled form of a Specification
// (spec.md §4.3). Every field is populated once by Compile and never
// mutated afterward; transformations that need a variant return a new
// value built from scratch rather than editing this one in place.
type QueryDescription struct {
	Inputs              []Input
	Facts               []FactDescription
	Edges               []EdgeDescription
	NotExistsConditions []NotExistsCondition
	Outputs             []Output
	Parameters          []any
}
