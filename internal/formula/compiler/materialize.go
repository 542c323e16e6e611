package compiler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the slice of pgxpool.Pool the materializer needs.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Materializer applies compiled DDL against Postgres in level order.
type Materializer struct {
	DB execer
}

// NewMaterializer wraps a pgx pool (or anything with Exec).
func NewMaterializer(db execer) *Materializer { return &Materializer{DB: db} }

// Apply executes every statement of the result, level by level ascending.
// A compile-level error aborts before any statement runs.
func (m *Materializer) Apply(ctx context.Context, res Result) error {
	if res.Error != "" {
		return fmt.Errorf("op=compiler.Apply: refusing to materialize: %s", res.Error)
	}
	for _, lvl := range ascendingLevels(res.Content) {
		for _, stmt := range res.Content[lvl] {
			if _, err := m.DB.Exec(ctx, stmt.SQL); err != nil {
				return fmt.Errorf("op=compiler.Apply level=%d: %w", lvl, err)
			}
			slog.Debug("materialized ddl statement",
				slog.Int("level", lvl),
				slog.Any("columns", stmt.Columns))
		}
	}
	return nil
}
