package domain

import (
	"time"
)

// SchemaRelease is a retired active schema kept in history, newest at end.
type SchemaRelease struct {
	ReleaseID  string         `json:"release_id"`
	Schema     map[string]any `json:"schema"`
	ReleasedAt time.Time      `json:"released_at"`
}

// JSONSchemaDoc is the per-import-name validation schema document.
// Invariant: ActiveSchema is never equal to the last release.
type JSONSchemaDoc struct {
	ImportName string          `json:"import_name"`
	Active     map[string]any  `json:"active_schema"`
	CreatedAt  time.Time       `json:"created_at"`
	Releases   []SchemaRelease `json:"schemas_releases"`
}

// Upsert and delete outcomes reported by the schema repository.
const (
	SchemaCreated  = "created"
	SchemaNoChange = "no_change"
	SchemaUpdated  = "updated"
	SchemaRemoved  = "removed"
	SchemaReverted = "reverted"
)
