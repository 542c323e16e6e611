package domain

// TaskOp enumerates the operations carried by worker messages.
type TaskOp string

const (
	OpSchemaUpdate TaskOp = "schema-update"
	OpSchemaRemove TaskOp = "schema-remove"
	OpValidation   TaskOp = "validation"
)

// FileMetadata describes an uploaded spreadsheet payload.
type FileMetadata struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size" validate:"gte=0"`
}

// Message is the broker envelope. Delivery is persistent, acked manually,
// and never requeued on parse failure.
type Message struct {
	ID         string         `json:"id" validate:"required,uuid4"`
	Task       TaskOp         `json:"task" validate:"required,oneof=schema-update schema-remove validation"`
	ImportName string         `json:"import_name" validate:"required"`
	Date       string         `json:"date" validate:"required"`
	Schema     map[string]any `json:"schema,omitempty"`
	Raw        bool           `json:"raw,omitempty"`
	FileData   string         `json:"file_data,omitempty"`
	Metadata   *FileMetadata  `json:"metadata,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}
