// Package sqlstore implements pkg/store.Storage and pkg/spec/plan.Schema
// over database/sql, grounded on the teacher's sql_ledger.go/
// postgres_ledger.go: one query per call, $n placeholders, sql.ErrNoRows
// mapped to the package's own sentinel, rows.Err() checked after every
// scan loop.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/plan"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
	"github.com/sigilrun/sigilgraph/pkg/store"
)

// SQLStore is a relational Storage/Schema backend. It satisfies
// plan.Schema directly, so a *SQLStore can be handed straight to
// plan.Compile or pkg/spec/feed.Build.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// New returns a Store backed by db, rendering its bootstrap DDL (see
// Init) according to dialect.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// FactTypeID implements plan.Schema.
func (s *SQLStore) FactTypeID(ctx context.Context, factType string) (int, bool, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `SELECT id FROM fact_type WHERE name = $1`, factType).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// RoleID implements plan.Schema.
func (s *SQLStore) RoleID(ctx context.Context, definingType, roleName string) (int, bool, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `SELECT id FROM role WHERE defining_type = $1 AND name = $2`, definingType, roleName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ensureFactType returns factType's id, registering it if this is the
// first fact of that type the store has ever seen.
func (s *SQLStore) ensureFactType(ctx context.Context, factType string) (int, error) {
	if id, ok, err := s.FactTypeID(ctx, factType); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO fact_type (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, factType); err != nil {
		return 0, err
	}
	id, ok, err := s.FactTypeID(ctx, factType)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, sigilerr.UnknownType(factType)
	}
	return id, nil
}

// ensureRole returns the role's id, registering it on first use.
func (s *SQLStore) ensureRole(ctx context.Context, definingType, roleName string) (int, error) {
	if id, ok, err := s.RoleID(ctx, definingType, roleName); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO role (defining_type, name) VALUES ($1, $2) ON CONFLICT (defining_type, name) DO NOTHING`, definingType, roleName); err != nil {
		return 0, err
	}
	id, ok, err := s.RoleID(ctx, definingType, roleName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, sigilerr.UnknownRole(definingType + "." + roleName)
	}
	return id, nil
}

// factID resolves ref to its surrogate fact_id, or ok=false if unsaved.
func (s *SQLStore) factID(ctx context.Context, ref fact.Reference) (int64, bool, error) {
	typeID, ok, err := s.FactTypeID(ctx, ref.Type)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT fact_id FROM fact WHERE fact_type_id = $1 AND hash = $2`, typeID, ref.Hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// FindFact implements run.FactSource.
func (s *SQLStore) FindFact(ctx context.Context, ref fact.Reference) (*fact.Fact, bool, error) {
	factID, ok, err := s.factID(ctx, ref)
	if err != nil || !ok {
		return nil, false, err
	}

	var data string
	if err := s.db.QueryRowContext(ctx, `SELECT data FROM fact WHERE fact_id = $1`, factID).Scan(&data); err != nil {
		return nil, false, err
	}

	var fields map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			return nil, false, err
		}
	}

	predecessors, err := s.loadPredecessors(ctx, factID)
	if err != nil {
		return nil, false, err
	}
	signatures, err := s.loadSignatures(ctx, factID)
	if err != nil {
		return nil, false, err
	}

	return &fact.Fact{
		Type:         ref.Type,
		Hash:         ref.Hash,
		Fields:       fields,
		Predecessors: predecessors,
		Signatures:   signatures,
	}, true, nil
}

// Hydrate implements run.FactSource.
func (s *SQLStore) Hydrate(ctx context.Context, ref fact.Reference) (*fact.Fact, error) {
	f, ok, err := s.FindFact(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sigilerr.UnknownFact(ref.String())
	}
	return f, nil
}

func (s *SQLStore) loadPredecessors(ctx context.Context, factID int64) (fact.Predecessors, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name, ft.name, f2.hash
		FROM edge e
		JOIN role r ON e.role_id = r.id
		JOIN fact f2 ON f2.fact_id = e.predecessor_fact_id
		JOIN fact_type ft ON ft.id = f2.fact_type_id
		WHERE e.successor_fact_id = $1`, factID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(fact.Predecessors)
	for rows.Next() {
		var role, predType, hash string
		if err := rows.Scan(&role, &predType, &hash); err != nil {
			return nil, err
		}
		out[role] = append(out[role], fact.Reference{Type: predType, Hash: hash})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) loadSignatures(ctx context.Context, factID int64) ([]fact.Signature, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT public_key, signature FROM signature WHERE fact_id = $1`, factID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []fact.Signature
	for rows.Next() {
		var sig fact.Signature
		if err := rows.Scan(&sig.PublicKey, &sig.Signature); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Predecessors implements run.FactSource.
func (s *SQLStore) Predecessors(ctx context.Context, ref fact.Reference, roleName, predecessorType string) ([]fact.Reference, error) {
	factID, ok, err := s.factID(ctx, ref)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f2.hash
		FROM edge e
		JOIN role r ON e.role_id = r.id
		JOIN fact f2 ON f2.fact_id = e.predecessor_fact_id
		JOIN fact_type ft ON ft.id = f2.fact_type_id
		WHERE e.successor_fact_id = $1 AND r.name = $2 AND ft.name = $3`,
		factID, roleName, predecessorType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []fact.Reference
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		out = append(out, fact.Reference{Type: predecessorType, Hash: hash})
	}
	return out, rows.Err()
}

// Successors implements run.FactSource.
func (s *SQLStore) Successors(ctx context.Context, ref fact.Reference, roleName, successorType string) ([]fact.Reference, error) {
	factID, ok, err := s.factID(ctx, ref)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f2.hash
		FROM edge e
		JOIN role r ON e.role_id = r.id
		JOIN fact f2 ON f2.fact_id = e.successor_fact_id
		JOIN fact_type ft ON ft.id = f2.fact_type_id
		WHERE e.predecessor_fact_id = $1 AND r.name = $2 AND ft.name = $3`,
		factID, roleName, successorType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []fact.Reference
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		out = append(out, fact.Reference{Type: successorType, Hash: hash})
	}
	return out, rows.Err()
}

// Save persists facts in order (predecessors must already be saved,
// since an edge row references the predecessor's fact_id), returning
// only the facts that were not already present.
func (s *SQLStore) Save(ctx context.Context, facts []*fact.Fact) ([]*fact.Fact, error) {
	var fresh []*fact.Fact
	for _, f := range facts {
		isNew, err := s.saveOne(ctx, f)
		if err != nil {
			return nil, err
		}
		if isNew {
			fresh = append(fresh, f)
		}
	}
	return fresh, nil
}

func (s *SQLStore) saveOne(ctx context.Context, f *fact.Fact) (bool, error) {
	ref := f.Reference()
	if _, ok, err := s.factID(ctx, ref); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}

	typeID, err := s.ensureFactType(ctx, f.Type)
	if err != nil {
		return false, err
	}

	data, err := json.Marshal(f.Fields)
	if err != nil {
		return false, err
	}

	var factID int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO fact (fact_type_id, hash, data) VALUES ($1, $2, $3) RETURNING fact_id`,
		typeID, f.Hash, string(data)).Scan(&factID)
	if err != nil {
		return false, err
	}

	for role, preds := range f.Predecessors {
		roleID, err := s.ensureRole(ctx, f.Type, role)
		if err != nil {
			return false, err
		}
		for _, pred := range preds {
			predID, ok, err := s.factID(ctx, pred)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, sigilerr.UnknownFact(pred.String())
			}
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO edge (predecessor_fact_id, successor_fact_id, role_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				predID, factID, roleID); err != nil {
				return false, err
			}
		}
	}

	for _, sig := range f.Signatures {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO signature (fact_id, public_key, signature) VALUES ($1, $2, $3)`,
			factID, sig.PublicKey, sig.Signature); err != nil {
			return false, err
		}
	}

	return true, nil
}

// Read delegates to pkg/spec/run.Runner, reading through the same
// FactSource methods Save's edge writes populate.
func (s *SQLStore) Read(ctx context.Context, sp *spec.Specification, starts []fact.Reference) ([]run.Result, error) {
	return run.New(s).Read(ctx, sp, starts)
}

// Feed compiles sp via pkg/spec/plan and runs the rendered feed SQL
// directly, reconstructing each row's bound facts by label.
func (s *SQLStore) Feed(ctx context.Context, sp *spec.Specification, starts map[string]fact.Reference, bookmark string, limit int) (store.FeedPage, error) {
	desc, ok, err := plan.Compile(ctx, sp, s)
	if err != nil {
		return store.FeedPage{}, err
	}
	if !ok {
		return store.FeedPage{}, nil
	}

	query, args, err := plan.FeedSQL(desc, starts, plan.FeedOptions{Bookmark: bookmark, Limit: limit})
	if err != nil {
		return store.FeedPage{}, err
	}

	outputs := nonInputOutputs(desc)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.FeedPage{}, err
	}
	defer func() { _ = rows.Close() }()

	var page store.FeedPage
	for rows.Next() {
		dest := make([]any, 0, len(outputs)*2)
		hashes := make([]string, len(outputs))
		factIDs := make([]int64, len(outputs))
		for i := range outputs {
			dest = append(dest, &hashes[i], &factIDs[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return store.FeedPage{}, err
		}

		t := store.Tuple{Facts: make(map[string]*fact.Fact, len(outputs)+len(starts))}
		for label, ref := range starts {
			f, err := s.Hydrate(ctx, ref)
			if err != nil {
				return store.FeedPage{}, err
			}
			t.Facts[label] = f
		}
		for i, out := range outputs {
			ref := fact.Reference{Type: out.Type, Hash: hashes[i]}
			f, err := s.Hydrate(ctx, ref)
			if err != nil {
				return store.FeedPage{}, err
			}
			t.Facts[out.Label] = f
		}
		page.Tuples = append(page.Tuples, t)
		page.Bookmark = fmt.Sprintf("%d", factIDs[len(factIDs)-1])
	}
	if err := rows.Err(); err != nil {
		return store.FeedPage{}, err
	}
	if page.Bookmark == "" {
		page.Bookmark = bookmark
	}
	return page, nil
}

// nonInputOutputs mirrors plan.QueryDescription's own unexported method
// of the same name (not reachable from outside the plan package): the
// feed query's SELECT list is every Output whose fact index is not one
// of the compiled Inputs, in ascending FactIndex order.
func nonInputOutputs(d *plan.QueryDescription) []plan.Output {
	inputIdx := map[int]bool{}
	for _, in := range d.Inputs {
		inputIdx[in.FactIndex] = true
	}
	var out []plan.Output
	for _, o := range d.Outputs {
		if !inputIdx[o.FactIndex] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FactIndex < out[j].FactIndex })
	return out
}

// Load retrieves facts by content address, silently omitting misses.
func (s *SQLStore) Load(ctx context.Context, refs []fact.Reference) ([]*fact.Fact, error) {
	out := make([]*fact.Fact, 0, len(refs))
	for _, ref := range refs {
		f, ok, err := s.FindFact(ctx, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// WhichExist returns the subset of refs already saved.
func (s *SQLStore) WhichExist(ctx context.Context, refs []fact.Reference) ([]fact.Reference, error) {
	out := make([]fact.Reference, 0, len(refs))
	for _, ref := range refs {
		if _, ok, err := s.factID(ctx, ref); err != nil {
			return nil, err
		} else if ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

// Purge runs sp against the store rooted at start, deletes every fact
// bound to sp's sole given across all matching results, and returns the
// deleted facts so a caller (internal/archival) can mirror them before
// they are gone for good. Purge reads only sp.Given[0]; neither Purge
// nor pkg/spec/validate checks that sp has exactly one given. Rows are read back
// via FindFact before any DELETE runs, since a purged fact_id is no
// longer queryable once its fact row is gone.
func (s *SQLStore) Purge(ctx context.Context, sp *spec.Specification, start fact.Reference) ([]*fact.Fact, error) {
	results, err := s.Read(ctx, sp, []fact.Reference{start})
	if err != nil {
		return nil, err
	}
	given := sp.Given[0].Name

	seen := make(map[fact.Reference]bool)
	var deleted []*fact.Fact
	for _, r := range results {
		ref, ok := r.Tuple[given]
		if !ok || seen[ref] {
			continue
		}
		seen[ref] = true

		f, ok, err := s.FindFact(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		factID, ok, err := s.factID(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM signature WHERE fact_id = $1`, factID); err != nil {
			return nil, err
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM edge WHERE predecessor_fact_id = $1 OR successor_fact_id = $1`, factID); err != nil {
			return nil, err
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM fact WHERE fact_id = $1`, factID); err != nil {
			return nil, err
		}

		deleted = append(deleted, f)
	}
	return deleted, nil
}

// LoadBookmark returns the stored bookmark for feedID, or "" if none has
// been saved yet.
func (s *SQLStore) LoadBookmark(ctx context.Context, feedID string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bookmark WHERE feed_id = $1`, feedID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SaveBookmark records bookmark as feedID's resume point.
func (s *SQLStore) SaveBookmark(ctx context.Context, feedID string, bookmark string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmark (feed_id, value) VALUES ($1, $2)
		ON CONFLICT (feed_id) DO UPDATE SET value = excluded.value`, feedID, bookmark)
	return err
}
