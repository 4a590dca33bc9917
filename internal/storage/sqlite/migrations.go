package sqlite

import "database/sql"

// schema holds the snapshot table. Each row is one encoded entity; seq
// preserves the order in which a registry handed its entities over.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    kind TEXT NOT NULL,
    id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    payload BLOB NOT NULL,
    saved_at INTEGER NOT NULL,
    PRIMARY KEY (kind, id)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_kind_seq ON snapshots(kind, seq);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
