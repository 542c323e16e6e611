package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/sheetflow/sheetflow/internal/domain"
)

// SchemaRepo persists JSON schema documents, one row per import name.
type SchemaRepo struct{ Pool PgxPool }

// NewSchemaRepo constructs a SchemaRepo with the given pool.
func NewSchemaRepo(p PgxPool) *SchemaRepo { return &SchemaRepo{Pool: p} }

// Insert upserts the active schema for an import name. Re-inserting an
// identical schema is a no-op; a different schema pushes the previous
// active onto the release history.
func (r *SchemaRepo) Insert(ctx context.Context, importName string, schema map[string]any) (string, error) {
	tracer := otel.Tracer("repo.schemas")
	ctx, span := tracer.Start(ctx, "schemas.Insert")
	defer span.End()

	doc, err := r.Find(ctx, importName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		active, mErr := json.Marshal(schema)
		if mErr != nil {
			return "", fmt.Errorf("op=schemas.insert: %w", mErr)
		}
		q := `INSERT INTO schemas (import_name, active_schema, created_at, schemas_releases) VALUES ($1,$2,$3,'[]'::jsonb)`
		if _, err := r.Pool.Exec(ctx, q, importName, active, time.Now().UTC()); err != nil {
			return "", fmt.Errorf("op=schemas.insert: %w", err)
		}
		return domain.SchemaCreated, nil
	case err != nil:
		return "", err
	}

	if equalSchemas(doc.Active, schema) {
		return domain.SchemaNoChange, nil
	}

	releases := append(doc.Releases, domain.SchemaRelease{
		ReleaseID:  ulid.Make().String(),
		Schema:     doc.Active,
		ReleasedAt: time.Now().UTC(),
	})
	if err := r.write(ctx, importName, schema, releases); err != nil {
		return "", err
	}
	return domain.SchemaUpdated, nil
}

// Find loads the schema document for an import name.
func (r *SchemaRepo) Find(ctx context.Context, importName string) (domain.JSONSchemaDoc, error) {
	tracer := otel.Tracer("repo.schemas")
	ctx, span := tracer.Start(ctx, "schemas.Find")
	defer span.End()

	var (
		doc         domain.JSONSchemaDoc
		activeRaw   []byte
		releasesRaw []byte
	)
	q := `SELECT import_name, active_schema, created_at, schemas_releases FROM schemas WHERE import_name = $1`
	err := r.Pool.QueryRow(ctx, q, importName).Scan(&doc.ImportName, &activeRaw, &doc.CreatedAt, &releasesRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JSONSchemaDoc{}, fmt.Errorf("op=schemas.find import=%s: %w", importName, domain.ErrNotFound)
	}
	if err != nil {
		return domain.JSONSchemaDoc{}, fmt.Errorf("op=schemas.find: %w", err)
	}
	if err := json.Unmarshal(activeRaw, &doc.Active); err != nil {
		return domain.JSONSchemaDoc{}, fmt.Errorf("op=schemas.find decode active: %w", err)
	}
	if err := json.Unmarshal(releasesRaw, &doc.Releases); err != nil {
		return domain.JSONSchemaDoc{}, fmt.Errorf("op=schemas.find decode releases: %w", err)
	}
	return doc, nil
}

// Delete reverts the active schema to the last release when history exists,
// otherwise removes the document entirely.
func (r *SchemaRepo) Delete(ctx context.Context, importName string) (string, error) {
	tracer := otel.Tracer("repo.schemas")
	ctx, span := tracer.Start(ctx, "schemas.Delete")
	defer span.End()

	doc, err := r.Find(ctx, importName)
	if err != nil {
		return "", err
	}
	if len(doc.Releases) == 0 {
		if _, err := r.Pool.Exec(ctx, `DELETE FROM schemas WHERE import_name = $1`, importName); err != nil {
			return "", fmt.Errorf("op=schemas.delete: %w", err)
		}
		return domain.SchemaRemoved, nil
	}
	last := doc.Releases[len(doc.Releases)-1]
	if err := r.write(ctx, importName, last.Schema, doc.Releases[:len(doc.Releases)-1]); err != nil {
		return "", err
	}
	return domain.SchemaReverted, nil
}

// DeleteImportName removes the document unconditionally, history included.
func (r *SchemaRepo) DeleteImportName(ctx context.Context, importName string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM schemas WHERE import_name = $1`, importName)
	if err != nil {
		return fmt.Errorf("op=schemas.delete_import_name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=schemas.delete_import_name import=%s: %w", importName, domain.ErrNotFound)
	}
	return nil
}

// Count returns the number of schema documents.
func (r *SchemaRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM schemas`).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=schemas.count: %w", err)
	}
	return n, nil
}

// Ping checks store liveness.
func (r *SchemaRepo) Ping(ctx context.Context) error { return r.Pool.Ping(ctx) }

func (r *SchemaRepo) write(ctx context.Context, importName string, active map[string]any, releases []domain.SchemaRelease) error {
	activeRaw, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("op=schemas.write: %w", err)
	}
	releasesRaw, err := json.Marshal(releases)
	if err != nil {
		return fmt.Errorf("op=schemas.write: %w", err)
	}
	q := `UPDATE schemas SET active_schema = $2, schemas_releases = $3 WHERE import_name = $1`
	if _, err := r.Pool.Exec(ctx, q, importName, activeRaw, releasesRaw); err != nil {
		return fmt.Errorf("op=schemas.write: %w", err)
	}
	return nil
}

// equalSchemas compares two schemas by canonical JSON encoding (map keys
// are marshaled in sorted order).
func equalSchemas(a, b map[string]any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
