package postgres

import (
	"context"
	"fmt"

	"github.com/phrazzld/todo-api/internal/store"
)

// schemaStatements bootstrap the task table. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS task (
		id         BIGSERIAL PRIMARY KEY,
		title      TEXT        NOT NULL CHECK (btrim(title) <> ''),
		status     TEXT        NOT NULL CHECK (status IN ('OPEN', 'IN_PROGRESS', 'DONE', 'CLOSED')),
		created_by BIGINT      NOT NULL CHECK (created_by > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS task_created_by_created_at_idx
		ON task (created_by, created_at DESC)`,
}

// EnsureSchema creates the task table and its index when they are missing.
// It never alters existing objects.
func EnsureSchema(ctx context.Context, db store.DBTX) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: statement %d: %w", i+1, MapError(err))
		}
	}
	return nil
}
