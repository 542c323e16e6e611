package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schemas (
		import_name      TEXT PRIMARY KEY,
		active_schema    JSONB NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		schemas_releases JSONB NOT NULL DEFAULT '[]'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		task_id     TEXT NOT NULL,
		task_kind   TEXT NOT NULL,
		status      TEXT NOT NULL,
		code        INTEGER NOT NULL DEFAULT 0,
		message     TEXT NOT NULL DEFAULT '',
		data        JSONB,
		import_name TEXT NOT NULL DEFAULT '',
		upload_date TIMESTAMPTZ NOT NULL,
		update_date TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (task_id, task_kind)
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_import_name_idx ON tasks (import_name, task_kind)`,
}

// Migrate bootstraps the document collections. Idempotent; runs at gateway
// startup.
func Migrate(ctx context.Context, pool PgxPool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=postgres.Migrate step=%d: %w", i, err)
		}
	}
	slog.Info("document store migrated", slog.Int("steps", len(migrations)))
	return nil
}
