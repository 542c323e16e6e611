package usecase

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xuri/excelize/v2"

	"github.com/sheetflow/sheetflow/internal/domain"
)

// xlsxMIME is the only upload type the validation pipeline accepts.
const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ValidationService validates uploaded spreadsheets row by row against the
// import's active JSON schema.
type ValidationService struct {
	Tasks     domain.TaskStore
	Repo      domain.SchemaRepository
	Results   domain.ResultPublisher
	ResultKey string
}

// NewValidationService constructs a ValidationService.
func NewValidationService(tasks domain.TaskStore, repo domain.SchemaRepository, results domain.ResultPublisher, resultKey string) ValidationService {
	return ValidationService{Tasks: tasks, Repo: repo, Results: results, ResultKey: resultKey}
}

func (s ValidationService) setStatus(ctx context.Context, taskID string, status domain.TaskStatus, opts domain.TaskUpdateOpts) {
	err := s.Tasks.Update(ctx, taskID, domain.TaskKindValidation, "status", string(status), opts)
	if err != nil {
		// Best effort; the pipeline carries on and the read path heals.
		_ = err
	}
}

func (s ValidationService) fail(ctx context.Context, taskID, importName, msg string) {
	s.setStatus(ctx, taskID, domain.StatusError, domain.TaskUpdateOpts{
		Message: msg,
		Data:    map[string]any{"error": msg},
	})
	_ = s.Results.PublishResult(ctx, s.ResultKey, taskID, importName, map[string]any{"status": "failed", "error": msg})
}

// Handle processes one validations-queue message.
func (s ValidationService) Handle(ctx context.Context, msg domain.Message) error {
	if msg.Task != domain.OpValidation {
		return fmt.Errorf("op=validation.handle task=%s: %w", msg.Task, domain.ErrInvalidArgument)
	}
	s.setStatus(ctx, msg.ID, domain.StatusReceivedSampleValidation, domain.TaskUpdateOpts{})

	s.setStatus(ctx, msg.ID, domain.StatusProcessingFile, domain.TaskUpdateOpts{})
	file, err := hex.DecodeString(msg.FileData)
	if err != nil {
		s.fail(ctx, msg.ID, msg.ImportName, fmt.Sprintf("decode file data: %s", err))
		return nil
	}
	if mt := mimetype.Detect(file); !mt.Is(xlsxMIME) {
		s.fail(ctx, msg.ID, msg.ImportName, fmt.Sprintf("unsupported file type %s", mt.String()))
		return nil
	}
	header, rows, err := readSheet(file)
	if err != nil {
		s.fail(ctx, msg.ID, msg.ImportName, err.Error())
		return nil
	}

	doc, err := s.Repo.Find(ctx, msg.ImportName)
	if err != nil {
		s.fail(ctx, msg.ID, msg.ImportName, fmt.Sprintf("no active schema for %s", msg.ImportName))
		return nil
	}
	schema, err := compileForValidation(doc.Active)
	if err != nil {
		s.fail(ctx, msg.ID, msg.ImportName, err.Error())
		return nil
	}

	s.setStatus(ctx, msg.ID, domain.StatusValidatingFile, domain.TaskUpdateOpts{})
	var (
		invalid   int
		rowErrors []any
	)
	for i, row := range rows {
		obj := rowObject(header, row)
		if err := schema.Validate(obj); err != nil {
			invalid++
			rowErrors = append(rowErrors, map[string]any{
				// Row numbering is 1-based and counts the header.
				"row":   i + 2,
				"error": validationMessage(err),
			})
		}
	}

	// Historical accounting: total counts cells, valid/invalid count rows.
	counts := map[string]any{
		"total":   len(rows) * len(header),
		"valid":   len(rows) - invalid,
		"invalid": invalid,
	}
	if len(rowErrors) > 0 {
		counts["errors"] = rowErrors
	}

	outcome := domain.StatusSuccess
	if invalid > 0 {
		outcome = domain.StatusWarning
	}
	s.setStatus(ctx, msg.ID, outcome, domain.TaskUpdateOpts{Data: counts})
	s.setStatus(ctx, msg.ID, domain.StatusCompleted, domain.TaskUpdateOpts{})

	result := map[string]any{"status": string(outcome)}
	for k, v := range counts {
		result[k] = v
	}
	if err := s.Results.PublishResult(ctx, s.ResultKey, msg.ID, msg.ImportName, result); err != nil {
		s.setStatus(ctx, msg.ID, domain.StatusFailedPublishingResult, domain.TaskUpdateOpts{Message: err.Error()})
		return nil
	}
	s.setStatus(ctx, msg.ID, domain.StatusPublished, domain.TaskUpdateOpts{})
	return nil
}

// readSheet extracts the header and data rows from the first sheet.
func readSheet(file []byte) (header []string, rows [][]string, err error) {
	f, err := excelize.OpenReader(bytes.NewReader(file))
	if err != nil {
		return nil, nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("spreadsheet has no sheets: %w", domain.ErrUnsupportedFile)
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("spreadsheet is empty: %w", domain.ErrUnsupportedFile)
	}
	return all[0], all[1:], nil
}

// rowObject builds the JSON object validated per row. Cell text is coerced
// to number or boolean when it parses as one, matching how the schemas are
// written.
func rowObject(header []string, row []string) map[string]any {
	obj := make(map[string]any, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		obj[col] = coerceCell(cell)
	}
	return obj
}

func coerceCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	return cell
}

// compileForValidation compiles the stored active schema.
func compileForValidation(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSchemaInvalid, err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSchemaInvalid, err)
	}
	return compiled, nil
}

// validationMessage flattens a jsonschema error to its leaf causes.
func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if ok := asValidationError(err, &ve); ok {
		leaves := leafCauses(ve)
		parts := make([]string, 0, len(leaves))
		for _, l := range leaves {
			loc := strings.TrimPrefix(l.InstanceLocation, "/")
			if loc == "" {
				parts = append(parts, l.Message)
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", loc, l.Message))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}

func leafCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}
