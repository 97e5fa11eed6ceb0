package sqlstore

import "context"

// Dialect picks the auto-increment/primary-key syntax the bootstrap DDL
// uses; the rest of the schema (and every query pkg/spec/plan/sql.go
// renders) is portable across both.
type Dialect int

const (
	// Postgres targets github.com/lib/pq.
	Postgres Dialect = iota
	// SQLite targets modernc.org/sqlite.
	SQLite
)

func (d Dialect) idColumn() string {
	switch d {
	case Postgres:
		return "BIGSERIAL PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// schema renders the bootstrap DDL: fact_type/role lookup tables (the
// Planner's Schema interface resolves against these), the fact/edge
// tables the generated SQL joins on, a signature table, and a bookmark
// table for Storage.LoadBookmark/SaveBookmark.
func (d Dialect) schema() string {
	return `
CREATE TABLE IF NOT EXISTS fact_type (
	id ` + d.idColumn() + `,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS role (
	id ` + d.idColumn() + `,
	defining_type TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE(defining_type, name)
);

CREATE TABLE IF NOT EXISTS fact (
	fact_id ` + d.idColumn() + `,
	fact_type_id INTEGER NOT NULL REFERENCES fact_type(id),
	hash TEXT NOT NULL,
	data TEXT NOT NULL,
	UNIQUE(fact_type_id, hash)
);

CREATE TABLE IF NOT EXISTS edge (
	predecessor_fact_id INTEGER NOT NULL REFERENCES fact(fact_id),
	successor_fact_id INTEGER NOT NULL REFERENCES fact(fact_id),
	role_id INTEGER NOT NULL REFERENCES role(id),
	UNIQUE(predecessor_fact_id, successor_fact_id, role_id)
);

CREATE TABLE IF NOT EXISTS signature (
	fact_id INTEGER NOT NULL REFERENCES fact(fact_id),
	public_key TEXT NOT NULL,
	signature TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bookmark (
	feed_id TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
}

// Init bootstraps s's schema, creating every table it does not already
// find present.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.schema())
	return err
}
