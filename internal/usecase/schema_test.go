package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/formula/compiler"
)

type fakeTaskStore struct {
	statuses []domain.TaskStatus
	data     map[string]any
	messages []string
}

func (f *fakeTaskStore) Set(context.Context, domain.Task) error { return nil }

func (f *fakeTaskStore) Update(_ context.Context, _ string, _ domain.TaskKind, field, value string, opts domain.TaskUpdateOpts) error {
	if field == "status" {
		f.statuses = append(f.statuses, domain.TaskStatus(value))
	}
	if opts.Message != "" {
		f.messages = append(f.messages, opts.Message)
	}
	if len(opts.Data) > 0 {
		if f.data == nil {
			f.data = map[string]any{}
		}
		for k, v := range opts.Data {
			f.data[k] = v
		}
	}
	return nil
}

func (f *fakeTaskStore) Get(context.Context, string, domain.TaskKind) (domain.Task, bool, error) {
	return domain.Task{}, false, nil
}

func (f *fakeTaskStore) GetByImport(context.Context, string, domain.TaskKind) ([]domain.Task, error) {
	return nil, nil
}

type fakeSchemaRepo struct {
	insertOutcome string
	insertErr     error
	deleteOutcome string
	deleteErr     error
	inserted      map[string]map[string]any
	doc           domain.JSONSchemaDoc
	findErr       error
}

func (f *fakeSchemaRepo) Insert(_ context.Context, importName string, schema map[string]any) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	if f.inserted == nil {
		f.inserted = map[string]map[string]any{}
	}
	f.inserted[importName] = schema
	return f.insertOutcome, nil
}

func (f *fakeSchemaRepo) Find(context.Context, string) (domain.JSONSchemaDoc, error) {
	if f.findErr != nil {
		return domain.JSONSchemaDoc{}, f.findErr
	}
	return f.doc, nil
}

func (f *fakeSchemaRepo) Delete(context.Context, string) (string, error) {
	return f.deleteOutcome, f.deleteErr
}

func (f *fakeSchemaRepo) DeleteImportName(context.Context, string) error { return nil }
func (f *fakeSchemaRepo) Count(context.Context) (int64, error)           { return 0, nil }
func (f *fakeSchemaRepo) Ping(context.Context) error                     { return nil }

type fakeResults struct {
	keys   []string
	extras []map[string]any
	err    error
}

func (f *fakeResults) PublishResult(_ context.Context, routingKey, _, _ string, extra map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, routingKey)
	f.extras = append(f.extras, extra)
	return nil
}

type fakeDDL struct {
	applied []compiler.Result
	err     error
}

func (f *fakeDDL) Apply(_ context.Context, res compiler.Result) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, res)
	return nil
}

func updateMessage(schema map[string]any) domain.Message {
	return domain.Message{
		ID:         "11111111-2222-4333-8444-555555555555",
		Task:       domain.OpSchemaUpdate,
		ImportName: "orders",
		Date:       time.Now().UTC().Format(time.RFC3339),
		Schema:     schema,
	}
}

func TestSchemaService_UpdateHappyPath(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{insertOutcome: domain.SchemaCreated}
	results := &fakeResults{}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	msg := updateMessage(map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	})
	require.NoError(t, svc.Handle(context.Background(), msg))

	require.Equal(t, []domain.TaskStatus{
		domain.StatusReceivedSchemaUpdate,
		domain.StatusCreatingSchema,
		domain.StatusSchemaCreated,
		domain.StatusSavingSchema,
		domain.StatusCompleted,
		domain.StatusPublished,
	}, tasks.statuses)
	require.Contains(t, repo.inserted, "orders")
	require.Equal(t, []string{"schemas.result.done"}, results.keys)
	require.Equal(t, "created", results.extras[0]["status"])
}

func TestSchemaService_UpdateNoChange(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{insertOutcome: domain.SchemaNoChange}
	results := &fakeResults{}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	msg := updateMessage(map[string]any{"type": "object"})
	require.NoError(t, svc.Handle(context.Background(), msg))
	require.Equal(t, "no_change", results.extras[0]["status"])
}

func TestSchemaService_UpdateInvalidSchema(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{insertOutcome: domain.SchemaCreated}
	results := &fakeResults{}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	// "type" must be a string or array of strings.
	msg := updateMessage(map[string]any{"type": 123})
	require.NoError(t, svc.Handle(context.Background(), msg))

	require.Contains(t, tasks.statuses, domain.StatusFailedCreatingSchema)
	require.NotContains(t, tasks.statuses, domain.StatusSavingSchema)
	require.Empty(t, repo.inserted)
	require.Equal(t, "failed", results.extras[0]["status"])
}

func TestSchemaService_UpdateSaveFailure(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{insertErr: errors.New("store down")}
	results := &fakeResults{}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	require.NoError(t, svc.Handle(context.Background(), updateMessage(map[string]any{"type": "object"})))
	require.Contains(t, tasks.statuses, domain.StatusFailedSavingSchema)
	require.NotContains(t, tasks.statuses, domain.StatusCompleted)
}

func TestSchemaService_Remove(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{deleteOutcome: domain.SchemaReverted}
	results := &fakeResults{}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	msg := domain.Message{
		ID:         "11111111-2222-4333-8444-555555555555",
		Task:       domain.OpSchemaRemove,
		ImportName: "orders",
		Date:       time.Now().UTC().Format(time.RFC3339),
	}
	require.NoError(t, svc.Handle(context.Background(), msg))

	require.Equal(t, []domain.TaskStatus{
		domain.StatusReceivedRemovingSchema,
		domain.StatusRemovingSchema,
		domain.StatusCompleted,
		domain.StatusPublished,
	}, tasks.statuses)
	require.Equal(t, "reverted", results.extras[0]["status"])
}

func TestSchemaService_RemoveMissing(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{deleteErr: fmt.Errorf("import=ghost: %w", domain.ErrNotFound)}
	results := &fakeResults{}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	msg := domain.Message{
		ID:         "11111111-2222-4333-8444-555555555555",
		Task:       domain.OpSchemaRemove,
		ImportName: "ghost",
		Date:       time.Now().UTC().Format(time.RFC3339),
	}
	require.NoError(t, svc.Handle(context.Background(), msg))
	require.Contains(t, tasks.statuses, domain.StatusFailedRemovingSchema)
}

func rawCompilePayload() map[string]any {
	return map[string]any{
		"table_name": "orders_t",
		"columns": map[string]any{
			"col1": map[string]any{"kind": "number", "value": float64(1)},
			"col2": map[string]any{
				"kind": "binary-expression", "operator": "+",
				"left":  map[string]any{"kind": "cell", "key": "A1", "column": "col1"},
				"right": map[string]any{"kind": "number", "value": float64(2)},
			},
		},
		"dtypes": map[string]any{
			"col1": map[string]any{"type": "INTEGER"},
			"col2": map[string]any{"type": "INTEGER"},
		},
	}
}

func TestSchemaService_RawCompileAndApply(t *testing.T) {
	tasks := &fakeTaskStore{}
	results := &fakeResults{}
	ddl := &fakeDDL{}
	svc := NewSchemaService(tasks, &fakeSchemaRepo{}, results, "schemas.result.done", ddl)

	msg := updateMessage(rawCompilePayload())
	msg.Raw = true
	require.NoError(t, svc.Handle(context.Background(), msg))

	require.Contains(t, tasks.statuses, domain.StatusSchemaCreated)
	require.Contains(t, tasks.statuses, domain.StatusCompleted)
	require.Len(t, ddl.applied, 1)
	require.Contains(t, ddl.applied[0].Content[0][0].SQL, "CREATE TABLE IF NOT EXISTS orders_t")
}

func TestSchemaService_RawCyclicFails(t *testing.T) {
	tasks := &fakeTaskStore{}
	results := &fakeResults{}
	ddl := &fakeDDL{}
	svc := NewSchemaService(tasks, &fakeSchemaRepo{}, results, "schemas.result.done", ddl)

	payload := map[string]any{
		"table_name": "t",
		"columns": map[string]any{
			"a": map[string]any{"kind": "cell", "key": "B1", "column": "b"},
			"b": map[string]any{"kind": "cell", "key": "A1", "column": "a"},
		},
	}
	msg := updateMessage(payload)
	msg.Raw = true
	require.NoError(t, svc.Handle(context.Background(), msg))

	require.Contains(t, tasks.statuses, domain.StatusFailedCreatingSchema)
	require.Empty(t, ddl.applied)
	require.Equal(t, compiler.ErrCyclic, results.extras[0]["error"])
}

func TestSchemaService_PublishFailureRecorded(t *testing.T) {
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{insertOutcome: domain.SchemaCreated}
	results := &fakeResults{err: errors.New("broker gone")}
	svc := NewSchemaService(tasks, repo, results, "schemas.result.done", nil)

	require.NoError(t, svc.Handle(context.Background(), updateMessage(map[string]any{"type": "object"})))
	require.Equal(t, domain.StatusFailedPublishingResult, tasks.statuses[len(tasks.statuses)-1])
}
