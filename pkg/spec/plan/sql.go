package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
)

// alias renders a 0-based fact index as the f1, f2, … names spec.md §4.3's
// SQL shape uses.
func alias(idx int) string { return fmt.Sprintf("f%d", idx+1) }

func edgeAlias(idx int) string { return fmt.Sprintf("e%d", idx+1) }

// BindParameters resolves a compiled QueryDescription's Parameters pool
// against concrete start facts, substituting each given's placeholder with
// its supplied hash. starts is keyed by given label.
func BindParameters(d *QueryDescription, starts map[string]fact.Reference) ([]any, error) {
	out := make([]any, len(d.Parameters))
	for i, p := range d.Parameters {
		switch v := p.(type) {
		case inputPlaceholder:
			ref, ok := starts[v.Label]
			if !ok {
				return nil, sigilerr.Malformed(fmt.Sprintf("no start fact supplied for given %q", v.Label))
			}
			out[i] = ref.Hash
		default:
			out[i] = v
		}
	}
	return out, nil
}

// renderer accumulates SQL text and extra (non-pool) parameters appended
// after the compiled Parameters — bookmark and limit values, which are
// supplied per execution rather than per compile.
type renderer struct {
	d       *QueryDescription
	nextArg int // 1-based placeholder counter, continuing from len(d.Parameters)
	extra   []any
}

func newRenderer(d *QueryDescription) *renderer {
	return &renderer{d: d, nextArg: len(d.Parameters) + 1}
}

func (r *renderer) param(idx int) string {
	return fmt.Sprintf("$%d", idx+1)
}

func (r *renderer) addExtra(v any) string {
	ph := fmt.Sprintf("$%d", r.nextArg)
	r.nextArg++
	r.extra = append(r.extra, v)
	return ph
}

// fromClause renders the FROM list of the compiled Inputs, in ascending
// fact-index order, and returns the set of fact indices it makes
// available for joining.
func (r *renderer) fromClause() (string, map[int]bool) {
	written := map[int]bool{}
	aliases := make([]string, 0, len(r.d.Inputs))
	idxs := make([]int, 0, len(r.d.Inputs))
	for _, in := range r.d.Inputs {
		idxs = append(idxs, in.FactIndex)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		written[idx] = true
		aliases = append(aliases, "fact "+alias(idx))
	}
	return "FROM " + strings.Join(aliases, ", "), written
}

// joinEdges renders edges in order, extending written as new fact aliases
// are introduced. Each edge either joins two already-written aliases (a
// pure filter join) or extends the chain with a newly introduced fact
// (spec.md §4.3 "Joins are emitted in the order edges were added").
func (r *renderer) joinEdges(edges []EdgeDescription, written map[int]bool) (string, error) {
	var b strings.Builder
	for _, e := range edges {
		predW, succW := written[e.PredecessorFactIndex], written[e.SuccessorFactIndex]
		ea := edgeAlias(e.EdgeIndex)
		switch {
		case predW && succW:
			fmt.Fprintf(&b, " JOIN edge %s ON %s.predecessor_fact_id=%s.fact_id AND %s.successor_fact_id=%s.fact_id AND %s.role_id=%s",
				ea, ea, alias(e.PredecessorFactIndex), ea, alias(e.SuccessorFactIndex), ea, r.param(e.RoleParameter))
		case predW && !succW:
			fmt.Fprintf(&b, " JOIN edge %s ON %s.predecessor_fact_id=%s.fact_id AND %s.role_id=%s JOIN fact %s ON %s.fact_id=%s.successor_fact_id",
				ea, ea, alias(e.PredecessorFactIndex), ea, r.param(e.RoleParameter), alias(e.SuccessorFactIndex), alias(e.SuccessorFactIndex), ea)
			written[e.SuccessorFactIndex] = true
		case succW && !predW:
			fmt.Fprintf(&b, " JOIN edge %s ON %s.successor_fact_id=%s.fact_id AND %s.role_id=%s JOIN fact %s ON %s.fact_id=%s.predecessor_fact_id",
				ea, ea, alias(e.SuccessorFactIndex), ea, r.param(e.RoleParameter), alias(e.PredecessorFactIndex), alias(e.PredecessorFactIndex), ea)
			written[e.PredecessorFactIndex] = true
		default:
			return "", sigilerr.Malformed("edge joins two facts neither of which is yet written")
		}
	}
	return b.String(), nil
}

func (r *renderer) whereInputs() string {
	var parts []string
	idxs := make([]int, 0, len(r.d.Inputs))
	byIdx := map[int]Input{}
	for _, in := range r.d.Inputs {
		idxs = append(idxs, in.FactIndex)
		byIdx[in.FactIndex] = in
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		in := byIdx[idx]
		parts = append(parts, fmt.Sprintf("%s.fact_type_id=%s AND %s.hash=%s",
			alias(idx), r.param(in.FactTypeParameter), alias(idx), r.param(in.FactHashParameter)))
	}
	return strings.Join(parts, " AND ")
}

// notExists renders nc as a correlated NOT EXISTS subquery. written is the
// set of fact aliases already available from the enclosing query; the
// first edge of nc.Edges always has exactly one side in written (the
// correlation point) and the other new, since a negative existential's
// matches are rooted at an already-bound label (spec.md §4.5's
// given-relative framing applies symmetrically here).
func (r *renderer) notExists(nc NotExistsCondition, written map[int]bool) (string, error) {
	if len(nc.Edges) == 0 {
		return "", sigilerr.Malformed("empty negative existential")
	}
	first := nc.Edges[0]
	predW, succW := written[first.PredecessorFactIndex], written[first.SuccessorFactIndex]

	inner := map[int]bool{}
	for k := range written {
		inner[k] = true
	}

	var b strings.Builder
	ea := edgeAlias(first.EdgeIndex)
	switch {
	case predW && !succW:
		fmt.Fprintf(&b, "NOT EXISTS (SELECT 1 FROM edge %s JOIN fact %s ON %s.fact_id=%s.successor_fact_id WHERE %s.predecessor_fact_id=%s.fact_id AND %s.role_id=%s",
			ea, alias(first.SuccessorFactIndex), alias(first.SuccessorFactIndex), ea, ea, alias(first.PredecessorFactIndex), ea, r.param(first.RoleParameter))
		inner[first.SuccessorFactIndex] = true
	case succW && !predW:
		fmt.Fprintf(&b, "NOT EXISTS (SELECT 1 FROM edge %s JOIN fact %s ON %s.fact_id=%s.predecessor_fact_id WHERE %s.successor_fact_id=%s.fact_id AND %s.role_id=%s",
			ea, alias(first.PredecessorFactIndex), alias(first.PredecessorFactIndex), ea, ea, alias(first.SuccessorFactIndex), ea, r.param(first.RoleParameter))
		inner[first.PredecessorFactIndex] = true
	default:
		return "", sigilerr.Malformed("negative existential is not rooted at an already-bound label")
	}

	rest, err := r.joinEdges(nc.Edges[1:], inner)
	if err != nil {
		return "", err
	}
	b.WriteString(rest)

	for _, child := range nc.NotExistsConditions {
		childSQL, err := r.notExists(child, inner)
		if err != nil {
			return "", err
		}
		b.WriteString(" AND ")
		b.WriteString(childSQL)
	}

	b.WriteString(")")
	return b.String(), nil
}

// nonInputOutputs returns Outputs whose label is not one of the given
// inputs, in FactIndex order — the columns a feed or result query
// actually selects (given hashes are already known to the caller).
func (d *QueryDescription) nonInputOutputs() []Output {
	inputIdx := map[int]bool{}
	for _, in := range d.Inputs {
		inputIdx[in.FactIndex] = true
	}
	var out []Output
	for _, o := range d.Outputs {
		if !inputIdx[o.FactIndex] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FactIndex < out[j].FactIndex })
	return out
}

// FeedOptions parameterizes a feed query's pagination.
type FeedOptions struct {
	// Bookmark, when non-empty, restricts results to rows whose last
	// output's fact_id is strictly greater than it; the fact ids of the
	// other outputs are not compared. Empty means "from the start".
	Bookmark string
	Limit    int
}

// FeedSQL renders the subscription/pagination query: hash and fact_id of
// each non-given output, ordered by the last output's fact_id, bounded by
// opts.Limit. Matches spec.md §8 scenario 3's literal shape for the
// single-successor case. starts supplies the concrete hash for every
// given; the returned args are the compiled parameter pool (bound against
// starts) followed by any pagination/limit extras, in $n order.
func FeedSQL(d *QueryDescription, starts map[string]fact.Reference, opts FeedOptions) (string, []any, error) {
	r := newRenderer(d)
	outputs := d.nonInputOutputs()
	if len(outputs) == 0 {
		return "", nil, sigilerr.Malformed("query has no non-given outputs to feed")
	}

	var sel []string
	for _, o := range outputs {
		sel = append(sel, fmt.Sprintf("%s.hash, %s.fact_id", alias(o.FactIndex), alias(o.FactIndex)))
	}

	from, written := r.fromClause()
	joins, err := r.joinEdges(d.Edges, written)
	if err != nil {
		return "", nil, err
	}

	where := []string{r.whereInputs()}
	for _, nc := range d.NotExistsConditions {
		sql, err := r.notExists(nc, written)
		if err != nil {
			return "", nil, err
		}
		where = append(where, sql)
	}
	if opts.Bookmark != "" {
		where = append(where, fmt.Sprintf("%s.fact_id > %s", alias(outputs[len(outputs)-1].FactIndex), r.addExtra(opts.Bookmark)))
	}

	last := outputs[len(outputs)-1]
	limit := r.addExtra(opts.Limit)

	query := fmt.Sprintf("SELECT %s %s%s WHERE %s ORDER BY %s.fact_id ASC LIMIT %s",
		strings.Join(sel, ", "), from, joins, strings.Join(where, " AND "), alias(last.FactIndex), limit)

	bound, err := BindParameters(d, starts)
	if err != nil {
		return "", nil, err
	}
	return query, append(bound, r.extra...), nil
}

// ResultSQL renders the result query: hash and stored data of every
// output (given and derived alike), with the same joins as the feed query
// but no bookmark/limit.
func ResultSQL(d *QueryDescription) (string, error) {
	r := newRenderer(d)
	outs := append([]Output(nil), d.Outputs...)
	sort.Slice(outs, func(i, j int) bool { return outs[i].FactIndex < outs[j].FactIndex })

	var sel []string
	for _, o := range outs {
		sel = append(sel, fmt.Sprintf("%s.hash, %s.data", alias(o.FactIndex), alias(o.FactIndex)))
	}

	from, written := r.fromClause()
	joins, err := r.joinEdges(d.Edges, written)
	if err != nil {
		return "", err
	}

	where := []string{r.whereInputs()}
	for _, nc := range d.NotExistsConditions {
		sql, err := r.notExists(nc, written)
		if err != nil {
			return "", err
		}
		where = append(where, sql)
	}

	return fmt.Sprintf("SELECT %s %s%s WHERE %s", strings.Join(sel, ", "), from, joins, strings.Join(where, " AND ")), nil
}
