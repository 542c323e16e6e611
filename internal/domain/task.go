// Package domain holds the core entities, the task status taxonomy, the
// error sentinels and the ports implemented by adapters.
package domain

import (
	"time"
)

// TaskKind partitions tasks by pipeline.
type TaskKind string

const (
	TaskKindSchemas    TaskKind = "schemas"
	TaskKindValidation TaskKind = "validation"
)

// TaskStatus is the closed status set the TTL table keys on.
type TaskStatus string

const (
	StatusAccepted                 TaskStatus = "accepted"
	StatusReceivedSampleValidation TaskStatus = "received-sample-validation"
	StatusProcessingFile           TaskStatus = "processing-file"
	StatusValidatingFile           TaskStatus = "validating-file"
	StatusReceivedSchemaUpdate     TaskStatus = "received-schema-update"
	StatusReceivedRemovingSchema   TaskStatus = "received-removing-schema"
	StatusCreatingSchema           TaskStatus = "creating-schema"
	StatusSchemaCreated            TaskStatus = "schema-created"
	StatusSavingSchema             TaskStatus = "saving-schema"
	StatusRemovingSchema           TaskStatus = "removing-schema"
	StatusSuccess                  TaskStatus = "success"
	StatusWarning                  TaskStatus = "warning"
	StatusCompleted                TaskStatus = "completed"
	StatusPublished                TaskStatus = "published"
	StatusFailedPublishingResult   TaskStatus = "failed-publishing-result"
	StatusFailedCreatingSchema     TaskStatus = "failed-creating-schema"
	StatusFailedSavingSchema       TaskStatus = "failed-saving-schema"
	StatusFailedRemovingSchema     TaskStatus = "failed-removing-schema"
	StatusError                    TaskStatus = "error"
)

// Task is an asynchronous unit of work identified by (TaskID, Kind).
// Data is merged on update unless the caller asks for a reset.
type Task struct {
	TaskID     string         `json:"task_id"`
	Kind       TaskKind       `json:"task_kind"`
	Status     TaskStatus     `json:"status"`
	Code       int            `json:"code"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	ImportName string         `json:"import_name"`
	UploadDate time.Time      `json:"upload_date"`
	UpdateDate time.Time      `json:"update_date"`
}

// TTLPolicy maps a task status to the KV TTL applied on writes.
type TTLPolicy struct {
	Table   map[TaskStatus]time.Duration
	Default time.Duration
}

// For returns the TTL for a status, falling back to the policy default.
func (p TTLPolicy) For(status TaskStatus) time.Duration {
	if d, ok := p.Table[status]; ok {
		return d
	}
	return p.Default
}
