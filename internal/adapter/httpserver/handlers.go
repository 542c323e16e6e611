package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gabriel-vasile/mimetype"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
)

// xlsxMIME is the only spreadsheet type the upload endpoint accepts.
const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server aggregates handler dependencies.
type Server struct {
	Cfg       config.Config
	Tasks     domain.TaskStore
	Publisher domain.Publisher
	// GatewayCheck reports data-gateway liveness for readiness probes.
	GatewayCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, tasks domain.TaskStore, pub domain.Publisher, gatewayCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Tasks: tasks, Publisher: pub, GatewayCheck: gatewayCheck}
}

// acceptTask records the freshly published task as accepted. The publisher's
// message id is the task id.
func (s *Server) acceptTask(ctx context.Context, taskID, importName string, kind domain.TaskKind) error {
	now := time.Now().UTC()
	return s.Tasks.Set(ctx, domain.Task{
		TaskID:     taskID,
		Kind:       kind,
		Status:     domain.StatusAccepted,
		Code:       http.StatusAccepted,
		Message:    "task accepted",
		ImportName: importName,
		UploadDate: now,
		UpdateDate: now,
	})
}

func queryFlag(r *http.Request, name string) bool {
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "true" || v == "1" || v == "yes"
}

// ValidationUploadHandler accepts a spreadsheet and enqueues its validation.
func (s *Server) ValidationUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importName := chi.URLParam(r, "import_name")
		if importName == "" {
			writeError(w, r, fmt.Errorf("%w: import_name is required", domain.ErrInvalidArgument), nil)
			return
		}
		isNew := queryFlag(r, "new")
		if !isNew {
			// Without new set, an import that already has validation tasks
			// answers from the store; only an unseen import falls through to
			// a fresh enqueue.
			tasks, err := s.Tasks.GetByImport(r.Context(), importName, domain.TaskKindValidation)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			if len(tasks) > 0 {
				writeJSON(w, http.StatusOK, map[string]any{
					"import_name": importName,
					"tasks":       tasks,
				})
				return
			}
		}
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "PAYLOAD_TOO_LARGE",
					Message: fmt.Sprintf("upload exceeds %d MB", s.Cfg.MaxUploadMB),
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: parse multipart form: %s", domain.ErrInvalidArgument, err), nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file field is required", domain.ErrInvalidArgument), nil)
			return
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("read upload: %w", err), nil)
			return
		}
		if mt := mimetype.Detect(data); !mt.Is(xlsxMIME) {
			writeError(w, r, fmt.Errorf("%w: %s is not a spreadsheet", domain.ErrUnsupportedFile, mt.String()), nil)
			return
		}

		meta := domain.FileMetadata{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        int64(len(data)),
		}
		extra := map[string]any{"new": isNew}
		taskID, err := s.Publisher.PublishValidation(r.Context(), importName, data, meta, extra)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.acceptTask(r.Context(), taskID, importName, domain.TaskKindValidation); err != nil {
			LoggerFrom(r).Warn("accepted task write failed", "task_id", taskID, "error", err)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":     taskID,
			"import_name": importName,
			"status":      string(domain.StatusAccepted),
		})
	}
}

// ValidationStatusHandler reports task state by task_id or import_name.
func (s *Server) ValidationStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("task_id")
		importName := r.URL.Query().Get("import_name")
		switch {
		case taskID != "":
			task, found, err := s.Tasks.Get(r.Context(), taskID, domain.TaskKindValidation)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			if !found {
				writeError(w, r, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID), nil)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case importName != "":
			tasks, err := s.Tasks.GetByImport(r.Context(), importName, domain.TaskKindValidation)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
		default:
			writeError(w, r, fmt.Errorf("%w: task_id or import_name is required", domain.ErrInvalidArgument), nil)
		}
	}
}

// SchemasUploadHandler accepts a JSON schema (or, with raw set, a formula
// compile request) and enqueues the schema update.
func (s *Server) SchemasUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importName := chi.URLParam(r, "import_name")
		if importName == "" {
			writeError(w, r, fmt.Errorf("%w: import_name is required", domain.ErrInvalidArgument), nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.MaxUploadMB*1024*1024)
		var schema map[string]any
		if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
			writeError(w, r, fmt.Errorf("%w: decode schema body: %s", domain.ErrInvalidArgument, err), nil)
			return
		}
		if len(schema) == 0 {
			writeError(w, r, fmt.Errorf("%w: schema body is empty", domain.ErrInvalidArgument), nil)
			return
		}

		taskID, err := s.Publisher.PublishSchemaUpdate(r.Context(), importName, schema, queryFlag(r, "raw"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.acceptTask(r.Context(), taskID, importName, domain.TaskKindSchemas); err != nil {
			LoggerFrom(r).Warn("accepted task write failed", "task_id", taskID, "error", err)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":     taskID,
			"import_name": importName,
			"status":      string(domain.StatusAccepted),
		})
	}
}

// SchemasRemoveHandler enqueues a schema removal (revert when history
// exists, delete otherwise).
func (s *Server) SchemasRemoveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importName := chi.URLParam(r, "import_name")
		if importName == "" {
			writeError(w, r, fmt.Errorf("%w: import_name is required", domain.ErrInvalidArgument), nil)
			return
		}
		taskID, err := s.Publisher.PublishSchemaRemove(r.Context(), importName)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.acceptTask(r.Context(), taskID, importName, domain.TaskKindSchemas); err != nil {
			LoggerFrom(r).Warn("accepted task write failed", "task_id", taskID, "error", err)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":     taskID,
			"import_name": importName,
			"status":      string(domain.StatusAccepted),
		})
	}
}

// ReadyzHandler reports readiness of the data gateway dependency.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.GatewayCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := s.GatewayCheck(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
