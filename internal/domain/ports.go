package domain

import "context"

// TaskDocRepository is the durable (document) tier of the task store.
type TaskDocRepository interface {
	Upsert(ctx context.Context, t Task) error
	Get(ctx context.Context, taskID string, kind TaskKind) (Task, bool, error)
	GetByImport(ctx context.Context, importName string, kind TaskKind) ([]Task, error)
	Ping(ctx context.Context) error
}

// SchemaRepository persists JSON schema documents keyed by import name.
type SchemaRepository interface {
	// Insert upserts a schema and reports created, no_change or updated.
	Insert(ctx context.Context, importName string, schema map[string]any) (string, error)
	Find(ctx context.Context, importName string) (JSONSchemaDoc, error)
	// Delete reverts to the last release when history is non-empty,
	// otherwise removes the document. Reports reverted or removed.
	Delete(ctx context.Context, importName string) (string, error)
	DeleteImportName(ctx context.Context, importName string) error
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// TaskStore is the dual-tier task repository (hot KV + durable document).
type TaskStore interface {
	Set(ctx context.Context, t Task) error
	Update(ctx context.Context, taskID string, kind TaskKind, field, value string, opts TaskUpdateOpts) error
	Get(ctx context.Context, taskID string, kind TaskKind) (Task, bool, error)
	GetByImport(ctx context.Context, importName string, kind TaskKind) ([]Task, error)
}

// TaskUpdateOpts carries the optional parts of an update call.
type TaskUpdateOpts struct {
	Message   string
	Data      map[string]any
	ResetData bool
}

// ResultPublisher emits a result envelope after a task reaches a terminal
// status.
type ResultPublisher interface {
	PublishResult(ctx context.Context, routingKey, taskID, importName string, extra map[string]any) error
}

// Publisher enqueues work and returns the assigned task id.
type Publisher interface {
	PublishSchemaUpdate(ctx context.Context, importName string, schema map[string]any, raw bool) (string, error)
	PublishSchemaRemove(ctx context.Context, importName string) (string, error)
	PublishValidation(ctx context.Context, importName string, fileData []byte, meta FileMetadata, extra map[string]any) (string, error)
}
