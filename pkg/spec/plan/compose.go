package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// Tree is a compiled plan for a Specification whose projection contains
// nested specification-projections: one QueryDescription per level, with
// a child Tree per NamedComponent that holds a NestedProjection. Per
// spec.md §4.3 "Result composition", a child receives the parent's output
// fact-ids as the leading columns of its own output, so rows at every
// level can be grouped back under the parent they belong to.
type Tree struct {
	Query      *QueryDescription
	Projection spec.Projection
	Scope      []spec.Label
	Children   map[string]*Tree
}

// BuildTree compiles s and, recursively, every nested specification-
// projection reachable from its projection, into a Tree. ok is false if
// any level is unsatisfiable against schema.
func BuildTree(ctx context.Context, s *spec.Specification, schema Schema) (*Tree, bool, error) {
	return buildTreeScoped(ctx, s.Given, s.Matches, s.Projection, schema)
}

func buildTreeScoped(ctx context.Context, given []spec.Given, matches []spec.Match, proj spec.Projection, schema Schema) (*Tree, bool, error) {
	root := &spec.Specification{Given: given, Matches: matches, Projection: stripNested(proj)}
	q, ok, err := Compile(ctx, root, schema)
	if err != nil || !ok {
		return nil, ok, err
	}

	scope := spec.AllLabels(&spec.Specification{Given: given, Matches: matches})

	t := &Tree{Query: q, Projection: proj, Scope: scope, Children: map[string]*Tree{}}
	if err := addChildren(ctx, t, proj, scope, schema); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// stripNested replaces every NestedProjection with an empty composite
// placeholder so the root (or any level's) own query compiles without its
// descendants' matches — those are compiled as independent child trees
// instead, each re-given the enclosing scope.
func stripNested(p spec.Projection) spec.Projection {
	switch t := p.(type) {
	case spec.CompositeProjection:
		out := make([]spec.NamedComponent, len(t.Components))
		for i, c := range t.Components {
			out[i] = spec.NamedComponent{Name: c.Name, Projection: stripNested(c.Projection)}
		}
		return spec.CompositeProjection{Components: out}
	case spec.NestedProjection:
		return spec.CompositeProjection{}
	default:
		return p
	}
}

func addChildren(ctx context.Context, t *Tree, p spec.Projection, scope []spec.Label, schema Schema) error {
	switch pp := p.(type) {
	case spec.CompositeProjection:
		for _, c := range pp.Components {
			if nested, ok := c.Projection.(spec.NestedProjection); ok {
				childGiven := make([]spec.Given, len(scope))
				for i, l := range scope {
					childGiven[i] = spec.Given{Name: l.Name, Type: l.Type}
				}
				child, ok, err := buildTreeScoped(ctx, childGiven, nested.Matches, nested.Projection, schema)
				if err != nil {
					return err
				}
				if !ok {
					return sigilerr.Malformed(fmt.Sprintf("nested projection %q is unsatisfiable", c.Name))
				}
				t.Children[c.Name] = child
			} else {
				if err := addChildren(ctx, t, c.Projection, scope, schema); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// row is one decoded result row: every Output's fact reference plus
// hydrated fields, keyed by label.
type row struct {
	refs   map[string]fact.Reference
	fields map[string]map[string]any
}

// ExecuteTree runs t (and its descendants) against db and composes the
// nested result shape the Projection describes, mirroring
// pkg/spec/run.Runner.project's output shape so Planner and Runner results
// can be compared directly (spec.md §8 "Planner soundness").
func ExecuteTree(ctx context.Context, db *sql.DB, t *Tree, starts map[string]fact.Reference) ([]any, error) {
	rows, err := queryRows(ctx, db, t.Query, starts)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(rows))
	for _, r := range rows {
		childScope := make(map[string]fact.Reference, len(r.refs))
		for k, v := range r.refs {
			childScope[k] = v
		}
		val, err := composeProjection(ctx, db, t, t.Projection, r, childScope)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func composeProjection(ctx context.Context, db *sql.DB, t *Tree, p spec.Projection, r row, scope map[string]fact.Reference) (any, error) {
	switch pp := p.(type) {
	case spec.CompositeProjection:
		obj := make(map[string]any, len(pp.Components))
		for _, c := range pp.Components {
			if _, isNested := c.Projection.(spec.NestedProjection); isNested {
				child := t.Children[c.Name]
				vals, err := ExecuteTree(ctx, db, child, scope)
				if err != nil {
					return nil, err
				}
				obj[c.Name] = vals
				continue
			}
			v, err := composeProjection(ctx, db, t, c.Projection, r, scope)
			if err != nil {
				return nil, err
			}
			obj[c.Name] = v
		}
		return obj, nil
	case spec.FactProjection:
		ref, ok := r.refs[pp.Label]
		if !ok {
			return nil, sigilerr.Malformed(fmt.Sprintf("projection references unbound label %q", pp.Label))
		}
		return ref, nil
	case spec.FieldProjection:
		fields, ok := r.fields[pp.Label]
		if !ok {
			return nil, sigilerr.Malformed(fmt.Sprintf("projection references unbound label %q", pp.Label))
		}
		return fields[pp.Field], nil
	case spec.HashProjection:
		ref, ok := r.refs[pp.Label]
		if !ok {
			return nil, sigilerr.Malformed(fmt.Sprintf("projection references unbound label %q", pp.Label))
		}
		return ref.Hash, nil
	default:
		return nil, sigilerr.Malformed("unrecognized projection tag")
	}
}

// queryRows executes q's ResultSQL against db and decodes every row's
// hash/data pairs into a row keyed by output label.
func queryRows(ctx context.Context, db *sql.DB, q *QueryDescription, starts map[string]fact.Reference) ([]row, error) {
	query, err := ResultSQL(q)
	if err != nil {
		return nil, err
	}
	args, err := BindParameters(q, starts)
	if err != nil {
		return nil, err
	}

	sqlRows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sigilerr.ErrTransport, err)
	}
	defer func() { _ = sqlRows.Close() }()

	var out []row
	for sqlRows.Next() {
		scans := make([]any, 0, 2*len(q.Outputs))
		hashes := make([]string, len(q.Outputs))
		datas := make([][]byte, len(q.Outputs))
		for i := range q.Outputs {
			scans = append(scans, &hashes[i], &datas[i])
		}
		if err := sqlRows.Scan(scans...); err != nil {
			return nil, err
		}

		r := row{refs: map[string]fact.Reference{}, fields: map[string]map[string]any{}}
		for i, o := range q.Outputs {
			r.refs[o.Label] = fact.Reference{Type: o.Type, Hash: hashes[i]}
			var fields map[string]any
			if len(datas[i]) > 0 {
				if err := json.Unmarshal(datas[i], &fields); err != nil {
					return nil, fmt.Errorf("decoding fact data for %q: %w", o.Label, err)
				}
			}
			r.fields[o.Label] = fields
		}
		out = append(out, r)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
