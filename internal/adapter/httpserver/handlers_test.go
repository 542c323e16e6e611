package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
)

type fakeTasks struct {
	set    []domain.Task
	get    domain.Task
	found  bool
	getErr error
	byName []domain.Task
}

func (f *fakeTasks) Set(_ context.Context, t domain.Task) error {
	f.set = append(f.set, t)
	return nil
}

func (f *fakeTasks) Update(context.Context, string, domain.TaskKind, string, string, domain.TaskUpdateOpts) error {
	return nil
}

func (f *fakeTasks) Get(context.Context, string, domain.TaskKind) (domain.Task, bool, error) {
	return f.get, f.found, f.getErr
}

func (f *fakeTasks) GetByImport(context.Context, string, domain.TaskKind) ([]domain.Task, error) {
	return f.byName, nil
}

type fakePublisher struct {
	schemaImport string
	schemaRaw    bool
	removed      string
	fileData     []byte
	extra        map[string]any
	err          error
}

func (f *fakePublisher) PublishSchemaUpdate(_ context.Context, importName string, _ map[string]any, raw bool) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.schemaImport, f.schemaRaw = importName, raw
	return "task-1", nil
}

func (f *fakePublisher) PublishSchemaRemove(_ context.Context, importName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.removed = importName
	return "task-2", nil
}

func (f *fakePublisher) PublishValidation(_ context.Context, _ string, fileData []byte, _ domain.FileMetadata, extra map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.fileData, f.extra = fileData, extra
	return "task-3", nil
}

func testRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Post("/validation/upload/{import_name}", srv.ValidationUploadHandler())
	r.Get("/validation/status", srv.ValidationStatusHandler())
	r.Post("/schemas/upload/{import_name}", srv.SchemasUploadHandler())
	r.Delete("/schemas/remove/{import_name}", srv.SchemasRemoveHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	return r
}

func testServer(tasks domain.TaskStore, pub domain.Publisher) *Server {
	cfg := config.Config{MaxUploadMB: 10}
	return NewServer(cfg, tasks, pub, nil)
}

func xlsxBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"name", "age"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func multipartUpload(t *testing.T, url, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestValidationUpload_Accepted(t *testing.T) {
	tasks := &fakeTasks{}
	pub := &fakePublisher{}
	h := testRouter(testServer(tasks, pub))

	req := multipartUpload(t, "/validation/upload/orders?new=true", "orders.xlsx", xlsxBytes(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "task-3", resp["task_id"])
	require.Equal(t, "orders", resp["import_name"])
	require.Equal(t, "accepted", resp["status"])

	require.Equal(t, true, pub.extra["new"])
	require.Len(t, tasks.set, 1)
	require.Equal(t, "task-3", tasks.set[0].TaskID)
	require.Equal(t, domain.TaskKindValidation, tasks.set[0].Kind)
	require.Equal(t, domain.StatusAccepted, tasks.set[0].Status)
	require.Equal(t, "orders", tasks.set[0].ImportName)
}

func TestValidationUpload_ReturnsCachedTasksWhenNotNew(t *testing.T) {
	tasks := &fakeTasks{byName: []domain.Task{
		{TaskID: "t1", ImportName: "orders", Status: domain.StatusCompleted},
		{TaskID: "t2", ImportName: "orders", Status: domain.StatusProcessingFile},
	}}
	pub := &fakePublisher{}
	h := testRouter(testServer(tasks, pub))

	req := multipartUpload(t, "/validation/upload/orders", "orders.xlsx", xlsxBytes(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ImportName string        `json:"import_name"`
		Tasks      []domain.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "orders", resp.ImportName)
	require.Len(t, resp.Tasks, 2)

	// Nothing was enqueued and no task was recorded.
	require.Nil(t, pub.fileData)
	require.Empty(t, tasks.set)
}

func TestValidationUpload_NewBypassesCachedTasks(t *testing.T) {
	tasks := &fakeTasks{byName: []domain.Task{{TaskID: "t1", ImportName: "orders"}}}
	pub := &fakePublisher{}
	h := testRouter(testServer(tasks, pub))

	req := multipartUpload(t, "/validation/upload/orders?new=true", "orders.xlsx", xlsxBytes(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, pub.fileData)
}

func TestValidationUpload_RejectsNonSpreadsheet(t *testing.T) {
	pub := &fakePublisher{}
	h := testRouter(testServer(&fakeTasks{}, pub))

	req := multipartUpload(t, "/validation/upload/orders", "orders.txt", []byte("not a workbook"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "UNSUPPORTED_FILE")
	require.Nil(t, pub.fileData)
}

func TestValidationUpload_MissingFileField(t *testing.T) {
	h := testRouter(testServer(&fakeTasks{}, &fakePublisher{}))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/validation/upload/orders", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationUpload_PublisherDown(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("publish: %w", domain.ErrUnavailable)}
	h := testRouter(testServer(&fakeTasks{}, pub))

	req := multipartUpload(t, "/validation/upload/orders", "orders.xlsx", xlsxBytes(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestValidationStatus_ByTaskID(t *testing.T) {
	tasks := &fakeTasks{get: domain.Task{TaskID: "t1", Status: domain.StatusCompleted}, found: true}
	h := testRouter(testServer(tasks, &fakePublisher{}))

	req := httptest.NewRequest(http.MethodGet, "/validation/status?task_id=t1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"completed"`)
}

func TestValidationStatus_NotFound(t *testing.T) {
	h := testRouter(testServer(&fakeTasks{}, &fakePublisher{}))

	req := httptest.NewRequest(http.MethodGet, "/validation/status?task_id=ghost", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationStatus_ByImportName(t *testing.T) {
	tasks := &fakeTasks{byName: []domain.Task{{TaskID: "a"}, {TaskID: "b"}}}
	h := testRouter(testServer(tasks, &fakePublisher{}))

	req := httptest.NewRequest(http.MethodGet, "/validation/status?import_name=orders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 2)
}

func TestValidationStatus_MissingParams(t *testing.T) {
	h := testRouter(testServer(&fakeTasks{}, &fakePublisher{}))

	req := httptest.NewRequest(http.MethodGet, "/validation/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemasUpload_Accepted(t *testing.T) {
	tasks := &fakeTasks{}
	pub := &fakePublisher{}
	h := testRouter(testServer(tasks, pub))

	body := strings.NewReader(`{"type":"object"}`)
	req := httptest.NewRequest(http.MethodPost, "/schemas/upload/orders?raw=true", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "orders", pub.schemaImport)
	require.True(t, pub.schemaRaw)
	require.Len(t, tasks.set, 1)
	require.Equal(t, domain.TaskKindSchemas, tasks.set[0].Kind)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "task-1", resp["task_id"])
	require.Equal(t, "orders", resp["import_name"])
}

func TestSchemasUpload_BadBody(t *testing.T) {
	h := testRouter(testServer(&fakeTasks{}, &fakePublisher{}))

	req := httptest.NewRequest(http.MethodPost, "/schemas/upload/orders", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/schemas/upload/orders", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemasRemove_Accepted(t *testing.T) {
	pub := &fakePublisher{}
	h := testRouter(testServer(&fakeTasks{}, pub))

	req := httptest.NewRequest(http.MethodDelete, "/schemas/remove/orders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "orders", pub.removed)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "task-2", resp["task_id"])
	require.Equal(t, "orders", resp["import_name"])
}

func TestReadyz(t *testing.T) {
	srv := testServer(&fakeTasks{}, &fakePublisher{})
	h := testRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	srv.GatewayCheck = func(context.Context) error { return errors.New("gateway down") }
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
