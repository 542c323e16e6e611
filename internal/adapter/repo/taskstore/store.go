// Package taskstore implements the dual-tier task repository: a hot KV
// tier with status-driven TTLs in front of the durable document tier.
package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/domain"
)

// KV is the slice of the Redis wrapper the store uses.
type KV interface {
	SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	GetHash(ctx context.Context, key string) (map[string]string, bool, error)
	SetHashField(ctx context.Context, key, field, value string) error
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Store is the dual-store task repository.
type Store struct {
	kv   KV
	docs domain.TaskDocRepository
	ttl  domain.TTLPolicy
}

// New wires the two tiers with the TTL policy.
func New(kv KV, docs domain.TaskDocRepository, ttl domain.TTLPolicy) *Store {
	return &Store{kv: kv, docs: docs, ttl: ttl}
}

func taskKey(kind domain.TaskKind, taskID string) string {
	return fmt.Sprintf("%s:task:%s", kind, taskID)
}

func importKey(kind domain.TaskKind, importName string) string {
	return fmt.Sprintf("%s:import:%s:tasks", kind, importName)
}

// Set writes a task to both tiers. A failure in either tier propagates as a
// single error; no rollback is attempted — reads heal through the surviving
// store.
func (s *Store) Set(ctx context.Context, t domain.Task) error {
	ttl := s.ttl.For(t.Status)
	fields, err := hashFields(t)
	if err != nil {
		return err
	}
	if err := s.kv.SetHash(ctx, taskKey(t.Kind, t.TaskID), fields, ttl); err != nil {
		return fmt.Errorf("op=taskstore.set kv: %w", err)
	}
	if t.ImportName != "" {
		if err := s.kv.AddToSet(ctx, importKey(t.Kind, t.ImportName), t.TaskID, ttl); err != nil {
			return fmt.Errorf("op=taskstore.set kv import index: %w", err)
		}
	}
	if err := s.docs.Upsert(ctx, t); err != nil {
		return fmt.Errorf("op=taskstore.set doc: %w", err)
	}
	observability.TaskStatusTotal.WithLabelValues(string(t.Kind), string(t.Status)).Inc()
	return nil
}

// Update sets one field on a task in both tiers. A status update re-arms the
// KV TTL for the new status. Data merges with the existing map unless
// ResetData is set.
func (s *Store) Update(ctx context.Context, taskID string, kind domain.TaskKind, field, value string, opts domain.TaskUpdateOpts) error {
	t, found, err := s.Get(ctx, taskID, kind)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("op=taskstore.update id=%s kind=%s: %w", taskID, kind, domain.ErrNotFound)
	}

	switch field {
	case "status":
		t.Status = domain.TaskStatus(value)
	case "code":
		code, convErr := strconv.Atoi(value)
		if convErr != nil {
			return fmt.Errorf("op=taskstore.update code=%q: %w", value, domain.ErrInvalidArgument)
		}
		t.Code = code
	case "message":
		t.Message = value
	default:
		return fmt.Errorf("op=taskstore.update field=%q: %w", field, domain.ErrInvalidArgument)
	}
	if opts.Message != "" {
		t.Message = opts.Message
	}
	if opts.ResetData {
		t.Data = opts.Data
	} else if len(opts.Data) > 0 {
		if t.Data == nil {
			t.Data = make(map[string]any, len(opts.Data))
		}
		for k, v := range opts.Data {
			t.Data[k] = v
		}
	}
	t.UpdateDate = time.Now().UTC()

	fields, err := hashFields(t)
	if err != nil {
		return err
	}
	key := taskKey(kind, taskID)
	ttl := s.ttl.For(t.Status)
	if err := s.kv.SetHash(ctx, key, fields, ttl); err != nil {
		return fmt.Errorf("op=taskstore.update kv: %w", err)
	}
	if field == "status" {
		if t.ImportName != "" {
			if err := s.kv.Expire(ctx, importKey(kind, t.ImportName), ttl); err != nil {
				return fmt.Errorf("op=taskstore.update kv import ttl: %w", err)
			}
		}
		observability.TaskStatusTotal.WithLabelValues(string(kind), string(t.Status)).Inc()
	}
	if err := s.docs.Upsert(ctx, t); err != nil {
		return fmt.Errorf("op=taskstore.update doc: %w", err)
	}
	return nil
}

// Get reads through the KV tier and falls back to the document store.
func (s *Store) Get(ctx context.Context, taskID string, kind domain.TaskKind) (domain.Task, bool, error) {
	fields, found, err := s.kv.GetHash(ctx, taskKey(kind, taskID))
	if err == nil && found {
		t, reshapeErr := taskFromHash(taskID, kind, fields)
		if reshapeErr == nil {
			return t, true, nil
		}
		slog.Warn("malformed kv task entry; falling back to document store",
			slog.String("task_id", taskID), slog.Any("error", reshapeErr))
	} else if err != nil {
		slog.Warn("kv read failed; falling back to document store",
			slog.String("task_id", taskID), slog.Any("error", err))
	}

	t, found, err := s.docs.Get(ctx, taskID, kind)
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("op=taskstore.get: %w", err)
	}
	return t, found, nil
}

// GetByImport tries the KV membership set first and falls back to the
// document store when the set is empty.
func (s *Store) GetByImport(ctx context.Context, importName string, kind domain.TaskKind) ([]domain.Task, error) {
	ids, err := s.kv.SetMembers(ctx, importKey(kind, importName))
	if err != nil {
		slog.Warn("kv membership read failed; falling back to document store",
			slog.String("import_name", importName), slog.Any("error", err))
		ids = nil
	}
	if len(ids) > 0 {
		out := make([]domain.Task, 0, len(ids))
		for _, id := range ids {
			t, found, err := s.Get(ctx, id, kind)
			if err != nil || !found {
				continue // skip malformed or expired members
			}
			out = append(out, t)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	tasks, err := s.docs.GetByImport(ctx, importName, kind)
	if err != nil {
		return nil, fmt.Errorf("op=taskstore.get_by_import: %w", err)
	}
	return tasks, nil
}

func hashFields(t domain.Task) (map[string]string, error) {
	dataRaw, err := json.Marshal(t.Data)
	if err != nil {
		return nil, fmt.Errorf("op=taskstore.hash data: %w", err)
	}
	return map[string]string{
		"status":      string(t.Status),
		"code":        strconv.Itoa(t.Code),
		"message":     t.Message,
		"data":        string(dataRaw),
		"import_name": t.ImportName,
		"upload_date": t.UploadDate.UTC().Format(time.RFC3339Nano),
		"update_date": t.UpdateDate.UTC().Format(time.RFC3339Nano),
	}, nil
}

// taskFromHash reshapes the KV hash into a task record: code decoded to an
// integer, data parsed back from JSON.
func taskFromHash(taskID string, kind domain.TaskKind, fields map[string]string) (domain.Task, error) {
	t := domain.Task{
		TaskID:     taskID,
		Kind:       kind,
		Status:     domain.TaskStatus(fields["status"]),
		Message:    fields["message"],
		ImportName: fields["import_name"],
	}
	if raw := fields["code"]; raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Task{}, fmt.Errorf("decode code %q: %w", raw, err)
		}
		t.Code = code
	}
	if raw := fields["data"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &t.Data); err != nil {
			return domain.Task{}, fmt.Errorf("decode data: %w", err)
		}
	}
	if raw := fields["upload_date"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Task{}, fmt.Errorf("decode upload_date: %w", err)
		}
		t.UploadDate = ts
	}
	if raw := fields["update_date"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Task{}, fmt.Errorf("decode update_date: %w", err)
		}
		t.UpdateDate = ts
	}
	return t, nil
}
