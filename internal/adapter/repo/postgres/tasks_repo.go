package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/sheetflow/sheetflow/internal/domain"
)

// TaskRepo is the durable tier of the task store, one row per
// (task_id, task_kind).
type TaskRepo struct{ Pool PgxPool }

// NewTaskRepo constructs a TaskRepo with the given pool.
func NewTaskRepo(p PgxPool) *TaskRepo { return &TaskRepo{Pool: p} }

// Upsert inserts or replaces a task document.
func (r *TaskRepo) Upsert(ctx context.Context, t domain.Task) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Upsert")
	defer span.End()

	dataRaw, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("op=tasks.upsert: %w", err)
	}
	q := `INSERT INTO tasks (task_id, task_kind, status, code, message, data, import_name, upload_date, update_date)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (task_id, task_kind) DO UPDATE SET
	        status = EXCLUDED.status, code = EXCLUDED.code, message = EXCLUDED.message,
	        data = EXCLUDED.data, import_name = EXCLUDED.import_name, update_date = EXCLUDED.update_date`
	_, err = r.Pool.Exec(ctx, q, t.TaskID, t.Kind, t.Status, t.Code, t.Message, dataRaw, t.ImportName, t.UploadDate, t.UpdateDate)
	if err != nil {
		return fmt.Errorf("op=tasks.upsert: %w", err)
	}
	return nil
}

// Get loads one task by identity.
func (r *TaskRepo) Get(ctx context.Context, taskID string, kind domain.TaskKind) (domain.Task, bool, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Get")
	defer span.End()

	q := `SELECT task_id, task_kind, status, code, message, data, import_name, upload_date, update_date
	      FROM tasks WHERE task_id = $1 AND task_kind = $2`
	t, err := scanTask(r.Pool.QueryRow(ctx, q, taskID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("op=tasks.get: %w", err)
	}
	return t, true, nil
}

// GetByImport returns every task recorded under an import name. Malformed
// documents are skipped.
func (r *TaskRepo) GetByImport(ctx context.Context, importName string, kind domain.TaskKind) ([]domain.Task, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.GetByImport")
	defer span.End()

	q := `SELECT task_id, task_kind, status, code, message, data, import_name, upload_date, update_date
	      FROM tasks WHERE import_name = $1 AND task_kind = $2 ORDER BY upload_date`
	rows, err := r.Pool.Query(ctx, q, importName, kind)
	if err != nil {
		return nil, fmt.Errorf("op=tasks.get_by_import: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			slog.Warn("skipping malformed task document",
				slog.String("import_name", importName), slog.Any("error", err))
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=tasks.get_by_import: %w", err)
	}
	return out, nil
}

// Ping checks store liveness.
func (r *TaskRepo) Ping(ctx context.Context) error { return r.Pool.Ping(ctx) }

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t       domain.Task
		dataRaw []byte
	)
	err := row.Scan(&t.TaskID, &t.Kind, &t.Status, &t.Code, &t.Message, &dataRaw, &t.ImportName, &t.UploadDate, &t.UpdateDate)
	if err != nil {
		return domain.Task{}, err
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &t.Data); err != nil {
			return domain.Task{}, fmt.Errorf("decode data: %w", err)
		}
	}
	return t, nil
}
