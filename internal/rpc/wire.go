package rpc

import (
	"time"

	"github.com/sheetflow/sheetflow/internal/domain"
)

// Empty is the zero-field request/response.
type Empty struct{}

// --- KV service ---

// KeysRequest asks for keys matching a glob pattern.
type KeysRequest struct {
	Pattern string `json:"pattern"`
}

// KeysResponse carries the matching keys.
type KeysResponse struct {
	Keys []string `json:"keys"`
}

// KVSetRequest writes one string value. TTLSeconds zero means no expiry.
type KVSetRequest struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

// KVGetRequest reads one key.
type KVGetRequest struct {
	Key string `json:"key"`
}

// KVGetResponse carries a value and whether the key existed.
type KVGetResponse struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// KVDeleteRequest removes keys.
type KVDeleteRequest struct {
	Keys []string `json:"keys"`
}

// KVDeleteResponse reports the number of keys removed.
type KVDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// PingResponse reports store liveness.
type PingResponse struct {
	Status string `json:"status"`
}

// CacheResponse carries a snapshot of the gateway's read cache.
type CacheResponse struct {
	Entries map[string]string `json:"entries"`
}

// --- Documents service ---

// ImportNameRequest addresses a schema document.
type ImportNameRequest struct {
	ImportName string `json:"import_name"`
}

// SchemaUpsertRequest upserts an active schema.
type SchemaUpsertRequest struct {
	ImportName string         `json:"import_name"`
	Schema     map[string]any `json:"schema"`
}

// SchemaMutationResponse reports the repository outcome: created,
// no_change, updated, reverted or removed.
type SchemaMutationResponse struct {
	Status string `json:"status"`
}

// CountResponse carries a document count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// SchemaReleaseWire is one history entry of a schema document.
type SchemaReleaseWire struct {
	ReleaseID  string         `json:"release_id"`
	Schema     map[string]any `json:"schema"`
	ReleasedAt string         `json:"released_at"`
}

// SchemaDocResponse is the wire form of a schema document.
type SchemaDocResponse struct {
	ImportName string              `json:"import_name"`
	Active     map[string]any      `json:"active_schema"`
	CreatedAt  string              `json:"created_at"`
	Releases   []SchemaReleaseWire `json:"schemas_releases"`
}

// --- Tasks service ---

// TaskWire is the wire form of a task record. Dates travel as RFC 3339
// strings, data as a structured object.
type TaskWire struct {
	TaskID     string         `json:"task_id"`
	Kind       string         `json:"task_kind"`
	Status     string         `json:"status"`
	Code       int            `json:"code"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	ImportName string         `json:"import_name"`
	UploadDate string         `json:"upload_date"`
	UpdateDate string         `json:"update_date"`
}

// TaskSetRequest writes a full task record.
type TaskSetRequest struct {
	Task TaskWire `json:"task"`
}

// TaskUpdateRequest sets one field of a task, optionally merging data.
type TaskUpdateRequest struct {
	TaskID    string         `json:"task_id"`
	Kind      string         `json:"task_kind"`
	Field     string         `json:"field"`
	Value     string         `json:"value"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	ResetData bool           `json:"reset_data,omitempty"`
}

// TaskGetRequest addresses one task.
type TaskGetRequest struct {
	TaskID string `json:"task_id"`
	Kind   string `json:"task_kind"`
}

// TaskGetResponse carries a task and whether it existed.
type TaskGetResponse struct {
	Task  TaskWire `json:"task"`
	Found bool     `json:"found"`
}

// TasksByImportRequest addresses every task of an import name.
type TasksByImportRequest struct {
	ImportName string `json:"import_name"`
	Kind       string `json:"task_kind"`
}

// TasksResponse carries a task list.
type TasksResponse struct {
	Tasks []TaskWire `json:"tasks"`
}

// --- Messaging service ---

// StreamRequest opens a message stream.
type StreamRequest struct{}

// MessageWire is the broker envelope on the wire; it mirrors the queue
// payload field for field.
type MessageWire struct {
	ID         string               `json:"id"`
	Task       string               `json:"task"`
	ImportName string               `json:"import_name"`
	Date       string               `json:"date"`
	Schema     map[string]any       `json:"schema,omitempty"`
	Raw        bool                 `json:"raw,omitempty"`
	FileData   string               `json:"file_data,omitempty"`
	Metadata   *domain.FileMetadata `json:"metadata,omitempty"`
	Extra      map[string]any       `json:"extra,omitempty"`
}

// MessagingParamsResponse describes the broker topology the gateway consumes.
type MessagingParamsResponse struct {
	Exchange      string            `json:"exchange"`
	Queues        map[string]string `json:"queues"`
	Bindings      map[string]string `json:"bindings"`
	PrefetchCount int               `json:"prefetch_count"`
}

// RoutingKeyRequest selects the request or result routing key.
type RoutingKeyRequest struct {
	Results bool `json:"results"`
}

// RoutingKeyResponse carries one routing key.
type RoutingKeyResponse struct {
	RoutingKey string `json:"routing_key"`
}

// --- mapping helpers ---

// TaskToWire converts a domain task to its wire form.
func TaskToWire(t domain.Task) TaskWire {
	return TaskWire{
		TaskID:     t.TaskID,
		Kind:       string(t.Kind),
		Status:     string(t.Status),
		Code:       t.Code,
		Message:    t.Message,
		Data:       t.Data,
		ImportName: t.ImportName,
		UploadDate: t.UploadDate.UTC().Format(time.RFC3339Nano),
		UpdateDate: t.UpdateDate.UTC().Format(time.RFC3339Nano),
	}
}

// TaskFromWire converts a wire task back to the domain form. Unparsable
// dates come back zero; callers treat them as unset.
func TaskFromWire(w TaskWire) domain.Task {
	t := domain.Task{
		TaskID:     w.TaskID,
		Kind:       domain.TaskKind(w.Kind),
		Status:     domain.TaskStatus(w.Status),
		Code:       w.Code,
		Message:    w.Message,
		Data:       w.Data,
		ImportName: w.ImportName,
	}
	if ts, err := time.Parse(time.RFC3339Nano, w.UploadDate); err == nil {
		t.UploadDate = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, w.UpdateDate); err == nil {
		t.UpdateDate = ts
	}
	return t
}

// SchemaDocToWire converts a schema document to its wire form.
func SchemaDocToWire(doc domain.JSONSchemaDoc) SchemaDocResponse {
	out := SchemaDocResponse{
		ImportName: doc.ImportName,
		Active:     doc.Active,
		CreatedAt:  doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, r := range doc.Releases {
		out.Releases = append(out.Releases, SchemaReleaseWire{
			ReleaseID:  r.ReleaseID,
			Schema:     r.Schema,
			ReleasedAt: r.ReleasedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

// SchemaDocFromWire converts a wire schema document back to the domain form.
func SchemaDocFromWire(w SchemaDocResponse) domain.JSONSchemaDoc {
	doc := domain.JSONSchemaDoc{
		ImportName: w.ImportName,
		Active:     w.Active,
	}
	if ts, err := time.Parse(time.RFC3339Nano, w.CreatedAt); err == nil {
		doc.CreatedAt = ts
	}
	for _, r := range w.Releases {
		rel := domain.SchemaRelease{ReleaseID: r.ReleaseID, Schema: r.Schema}
		if ts, err := time.Parse(time.RFC3339Nano, r.ReleasedAt); err == nil {
			rel.ReleasedAt = ts
		}
		doc.Releases = append(doc.Releases, rel)
	}
	return doc
}

// MessageToWire converts a broker envelope to its wire form.
func MessageToWire(m domain.Message) MessageWire {
	return MessageWire{
		ID:         m.ID,
		Task:       string(m.Task),
		ImportName: m.ImportName,
		Date:       m.Date,
		Schema:     m.Schema,
		Raw:        m.Raw,
		FileData:   m.FileData,
		Metadata:   m.Metadata,
		Extra:      m.Extra,
	}
}

// MessageFromWire converts a wire envelope back to the domain form.
func MessageFromWire(w MessageWire) domain.Message {
	return domain.Message{
		ID:         w.ID,
		Task:       domain.TaskOp(w.Task),
		ImportName: w.ImportName,
		Date:       w.Date,
		Schema:     w.Schema,
		Raw:        w.Raw,
		FileData:   w.FileData,
		Metadata:   w.Metadata,
		Extra:      w.Extra,
	}
}
