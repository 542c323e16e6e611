// Package usecase implements the worker-side domain handlers: schema
// lifecycle and spreadsheet validation, driving tasks through the status
// set and publishing results.
package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/formula/ast"
	"github.com/sheetflow/sheetflow/internal/formula/compiler"
)

// DDLApplier executes a compiled DDL result against the warehouse.
type DDLApplier interface {
	Apply(ctx context.Context, res compiler.Result) error
}

// SchemaService handles schema-update and schema-remove messages.
type SchemaService struct {
	Tasks     domain.TaskStore
	Repo      domain.SchemaRepository
	Results   domain.ResultPublisher
	ResultKey string
	DDL       DDLApplier
}

// NewSchemaService constructs a SchemaService.
func NewSchemaService(tasks domain.TaskStore, repo domain.SchemaRepository, results domain.ResultPublisher, resultKey string, ddl DDLApplier) SchemaService {
	return SchemaService{Tasks: tasks, Repo: repo, Results: results, ResultKey: resultKey, DDL: ddl}
}

// Handle dispatches one schemas-queue message.
func (s SchemaService) Handle(ctx context.Context, msg domain.Message) error {
	switch msg.Task {
	case domain.OpSchemaUpdate:
		return s.handleUpdate(ctx, msg)
	case domain.OpSchemaRemove:
		return s.handleRemove(ctx, msg)
	default:
		return fmt.Errorf("op=schema.handle task=%s: %w", msg.Task, domain.ErrInvalidArgument)
	}
}

func (s SchemaService) setStatus(ctx context.Context, taskID string, status domain.TaskStatus, opts domain.TaskUpdateOpts) {
	err := s.Tasks.Update(ctx, taskID, domain.TaskKindSchemas, "status", string(status), opts)
	if err != nil {
		slog.Warn("task status update failed",
			slog.String("task_id", taskID),
			slog.String("status", string(status)),
			slog.Any("error", err))
	}
}

// publishResult emits the result envelope and records the publish outcome
// on the task.
func (s SchemaService) publishResult(ctx context.Context, taskID, importName string, extra map[string]any) {
	if err := s.Results.PublishResult(ctx, s.ResultKey, taskID, importName, extra); err != nil {
		slog.Warn("result publish failed", slog.String("task_id", taskID), slog.Any("error", err))
		s.setStatus(ctx, taskID, domain.StatusFailedPublishingResult, domain.TaskUpdateOpts{Message: err.Error()})
		return
	}
	s.setStatus(ctx, taskID, domain.StatusPublished, domain.TaskUpdateOpts{})
}

func (s SchemaService) handleUpdate(ctx context.Context, msg domain.Message) error {
	s.setStatus(ctx, msg.ID, domain.StatusReceivedSchemaUpdate, domain.TaskUpdateOpts{})
	if msg.Raw {
		return s.handleRawUpdate(ctx, msg)
	}

	s.setStatus(ctx, msg.ID, domain.StatusCreatingSchema, domain.TaskUpdateOpts{})
	if err := compileJSONSchema(msg.Schema); err != nil {
		s.setStatus(ctx, msg.ID, domain.StatusFailedCreatingSchema, domain.TaskUpdateOpts{
			Message: err.Error(),
			Data:    map[string]any{"error": err.Error()},
		})
		s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "failed", "error": err.Error()})
		return nil
	}
	s.setStatus(ctx, msg.ID, domain.StatusSchemaCreated, domain.TaskUpdateOpts{})

	s.setStatus(ctx, msg.ID, domain.StatusSavingSchema, domain.TaskUpdateOpts{})
	outcome, err := s.Repo.Insert(ctx, msg.ImportName, msg.Schema)
	if err != nil {
		s.setStatus(ctx, msg.ID, domain.StatusFailedSavingSchema, domain.TaskUpdateOpts{Message: err.Error()})
		s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "failed", "error": err.Error()})
		return nil
	}

	s.setStatus(ctx, msg.ID, domain.StatusCompleted, domain.TaskUpdateOpts{
		Data: map[string]any{"status": outcome},
	})
	s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": outcome})
	return nil
}

// handleRawUpdate treats the schema payload as a formula compile request:
// column ASTs, dtypes and a table name. The compiled levels run through the
// DDL applier when one is wired.
func (s SchemaService) handleRawUpdate(ctx context.Context, msg domain.Message) error {
	s.setStatus(ctx, msg.ID, domain.StatusCreatingSchema, domain.TaskUpdateOpts{})

	req, err := parseCompileRequest(msg.Schema)
	if err != nil {
		s.setStatus(ctx, msg.ID, domain.StatusFailedCreatingSchema, domain.TaskUpdateOpts{Message: err.Error()})
		s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "failed", "error": err.Error()})
		return nil
	}

	res := compiler.Compile(req.Columns, req.Dtypes, req.TableName)
	resultData := map[string]any{"content": res.Content}
	if res.Error != "" {
		resultData["error"] = res.Error
		s.setStatus(ctx, msg.ID, domain.StatusFailedCreatingSchema, domain.TaskUpdateOpts{
			Message: res.Error,
			Data:    resultData,
		})
		s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "failed", "error": res.Error})
		return nil
	}
	s.setStatus(ctx, msg.ID, domain.StatusSchemaCreated, domain.TaskUpdateOpts{Data: resultData})

	if s.DDL != nil {
		s.setStatus(ctx, msg.ID, domain.StatusSavingSchema, domain.TaskUpdateOpts{})
		if err := s.DDL.Apply(ctx, res); err != nil {
			s.setStatus(ctx, msg.ID, domain.StatusFailedSavingSchema, domain.TaskUpdateOpts{Message: err.Error()})
			s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "failed", "error": err.Error()})
			return nil
		}
	}

	s.setStatus(ctx, msg.ID, domain.StatusCompleted, domain.TaskUpdateOpts{})
	s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "created"})
	return nil
}

func (s SchemaService) handleRemove(ctx context.Context, msg domain.Message) error {
	s.setStatus(ctx, msg.ID, domain.StatusReceivedRemovingSchema, domain.TaskUpdateOpts{})
	s.setStatus(ctx, msg.ID, domain.StatusRemovingSchema, domain.TaskUpdateOpts{})

	outcome, err := s.Repo.Delete(ctx, msg.ImportName)
	if err != nil {
		s.setStatus(ctx, msg.ID, domain.StatusFailedRemovingSchema, domain.TaskUpdateOpts{Message: err.Error()})
		s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": "failed", "error": err.Error()})
		return nil
	}

	s.setStatus(ctx, msg.ID, domain.StatusCompleted, domain.TaskUpdateOpts{
		Data: map[string]any{"status": outcome},
	})
	s.publishResult(ctx, msg.ID, msg.ImportName, map[string]any{"status": outcome})
	return nil
}

// compileJSONSchema rejects payloads that are not a valid draft-07 schema.
func compileJSONSchema(schema map[string]any) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrSchemaInvalid, err)
	}
	if _, err := c.Compile("schema.json"); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrSchemaInvalid, err)
	}
	return nil
}

// compileRequest is the raw-mode schema payload.
type compileRequest struct {
	Columns   map[string]*ast.Node
	Dtypes    map[string]compiler.Dtype
	TableName string
}

func parseCompileRequest(payload map[string]any) (compileRequest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return compileRequest{}, fmt.Errorf("encode compile request: %w", err)
	}
	var wire struct {
		Columns   map[string]*ast.Node      `json:"columns"`
		Dtypes    map[string]compiler.Dtype `json:"dtypes"`
		TableName string                    `json:"table_name"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return compileRequest{}, fmt.Errorf("%w: decode compile request: %s", domain.ErrInvalidArgument, err)
	}
	if len(wire.Columns) == 0 || strings.TrimSpace(wire.TableName) == "" {
		return compileRequest{}, fmt.Errorf("%w: compile request needs columns and table_name", domain.ErrInvalidArgument)
	}
	return compileRequest{Columns: wire.Columns, Dtypes: wire.Dtypes, TableName: wire.TableName}, nil
}
