package usecase

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sheetflow/sheetflow/internal/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func activeSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"name", "age"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": float64(1)},
			"age":  map[string]any{"type": "number", "minimum": float64(0)},
		},
	}
}

func validationMsg(file []byte) domain.Message {
	return domain.Message{
		ID:         "22222222-3333-4444-8555-666666666666",
		Task:       domain.OpValidation,
		ImportName: "orders",
		Date:       time.Now().UTC().Format(time.RFC3339),
		FileData:   hex.EncodeToString(file),
		Metadata:   &domain.FileMetadata{Filename: "orders.xlsx", Size: int64(len(file))},
	}
}

func TestValidationService_AllRowsValid(t *testing.T) {
	file := buildWorkbook(t, [][]any{
		{"name", "age"},
		{"ada", 36},
		{"grace", 45},
	})
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{doc: domain.JSONSchemaDoc{ImportName: "orders", Active: activeSchema()}}
	results := &fakeResults{}
	svc := NewValidationService(tasks, repo, results, "validation.result.done")

	require.NoError(t, svc.Handle(context.Background(), validationMsg(file)))

	require.Equal(t, []domain.TaskStatus{
		domain.StatusReceivedSampleValidation,
		domain.StatusProcessingFile,
		domain.StatusValidatingFile,
		domain.StatusSuccess,
		domain.StatusCompleted,
		domain.StatusPublished,
	}, tasks.statuses)

	// total counts cells (rows x columns); valid and invalid count rows.
	require.Equal(t, 4, tasks.data["total"])
	require.Equal(t, 2, tasks.data["valid"])
	require.Equal(t, 0, tasks.data["invalid"])
	require.Equal(t, "success", results.extras[0]["status"])
}

func TestValidationService_InvalidRowsWarn(t *testing.T) {
	file := buildWorkbook(t, [][]any{
		{"name", "age"},
		{"ada", 36},
		{"", -1}, // empty name, negative age
	})
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{doc: domain.JSONSchemaDoc{ImportName: "orders", Active: activeSchema()}}
	results := &fakeResults{}
	svc := NewValidationService(tasks, repo, results, "validation.result.done")

	require.NoError(t, svc.Handle(context.Background(), validationMsg(file)))

	require.Contains(t, tasks.statuses, domain.StatusWarning)
	require.NotContains(t, tasks.statuses, domain.StatusSuccess)
	require.Equal(t, 1, tasks.data["invalid"])
	require.NotEmpty(t, tasks.data["errors"])
}

func TestValidationService_BadHex(t *testing.T) {
	tasks := &fakeTaskStore{}
	svc := NewValidationService(tasks, &fakeSchemaRepo{}, &fakeResults{}, "validation.result.done")

	msg := validationMsg(nil)
	msg.FileData = "zz-not-hex"
	require.NoError(t, svc.Handle(context.Background(), msg))
	require.Contains(t, tasks.statuses, domain.StatusError)
}

func TestValidationService_WrongFileType(t *testing.T) {
	tasks := &fakeTaskStore{}
	svc := NewValidationService(tasks, &fakeSchemaRepo{}, &fakeResults{}, "validation.result.done")

	require.NoError(t, svc.Handle(context.Background(), validationMsg([]byte("plain text, not a workbook"))))
	require.Contains(t, tasks.statuses, domain.StatusError)
}

func TestValidationService_NoActiveSchema(t *testing.T) {
	file := buildWorkbook(t, [][]any{{"name"}, {"ada"}})
	tasks := &fakeTaskStore{}
	repo := &fakeSchemaRepo{findErr: fmt.Errorf("import=orders: %w", domain.ErrNotFound)}
	results := &fakeResults{}
	svc := NewValidationService(tasks, repo, results, "validation.result.done")

	require.NoError(t, svc.Handle(context.Background(), validationMsg(file)))
	require.Contains(t, tasks.statuses, domain.StatusError)
	require.Equal(t, "failed", results.extras[0]["status"])
}

func TestCoerceCell(t *testing.T) {
	require.Equal(t, 36.0, coerceCell("36"))
	require.Equal(t, true, coerceCell("TRUE"))
	require.Equal(t, false, coerceCell("false"))
	require.Equal(t, "ada", coerceCell("ada"))
	require.Nil(t, coerceCell("  "))
}
