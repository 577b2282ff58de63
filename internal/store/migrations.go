package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the key/value table.
// The statements are valid for both SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS client_state (
		scope      TEXT NOT NULL,
		name       TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (scope, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_client_state_updated_at ON client_state(updated_at)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
