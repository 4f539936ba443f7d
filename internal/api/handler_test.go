package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/dataset"
	"github.com/askframe/askframe/internal/pipeline"
	"github.com/askframe/askframe/internal/query"
	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/storage"
	"github.com/askframe/askframe/internal/table"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("bucket unreachable")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckGenerationConfigRequiresKey(t *testing.T) {
	cfg := loadConfig(t, nil)
	cfg.AI.APIKey = ""
	if err := CheckGenerationConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected readiness failure without api key")
	}
	if CheckObjectStore(nil) != nil {
		t.Fatal("nil store should produce no check")
	}
}

func TestAskReturnsOutputs(t *testing.T) {
	loader := &fakeLoader{table: salesTable()}
	analyst := &fakeAnalyst{outcome: pipeline.Outcome{
		Code: "output_value = df['sales'].mean()",
		Report: render.Report{Outputs: []render.Output{
			{Kind: render.KindValue, Title: "Computed Value", Text: "20.0", Value: 20.0},
		}},
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Datasets: loader, Analyst: analyst})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/ask", "sales.csv", map[string]string{"question": "What is the average of sales?"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body askResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Outputs) != 1 || body.Outputs[0].Kind != render.KindValue || body.Outputs[0].Value != 20.0 {
		t.Fatalf("outputs = %+v", body.Outputs)
	}
	if loader.names[0] != "sales.csv" || string(loader.bodies[0]) != "region,sales\n" {
		t.Fatalf("loader saw %v %q", loader.names, loader.bodies)
	}
	if analyst.requests[0].Question != "What is the average of sales?" || analyst.requests[0].Table.NumRows() != 3 {
		t.Fatalf("analyst request = %+v", analyst.requests[0])
	}
}

func TestAskMapsFailureKinds(t *testing.T) {
	cases := []struct {
		kind      pipeline.FailureKind
		stage     pipeline.Stage
		status    int
		code      string
		retryable bool
	}{
		{pipeline.KindGeneration, pipeline.StageGenerate, http.StatusBadGateway, "GENERATION_FAILED", true},
		{pipeline.KindExtraction, pipeline.StageExtract, http.StatusUnprocessableEntity, "CODE_NOT_FOUND", true},
		{pipeline.KindSandbox, pipeline.StageExecute, http.StatusUnprocessableEntity, "EXECUTION_FAILED", true},
		{pipeline.KindRender, pipeline.StageClassify, http.StatusInternalServerError, "RENDER_FAILED", false},
	}
	for _, tc := range cases {
		analyst := &fakeAnalyst{outcome: pipeline.Outcome{
			Code:    "x = 1 / 0",
			Failure: &pipeline.Failure{Stage: tc.stage, Kind: tc.kind, Err: errors.New("division by zero"), Trace: "Traceback: division by zero"},
		}}
		h := NewHandler(loadConfig(t, nil), Dependencies{Datasets: &fakeLoader{table: salesTable()}, Analyst: analyst})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, multipartRequest(t, "/v1/ask", "sales.csv", map[string]string{"question": "ratio?"}))

		if rr.Code != tc.status {
			t.Fatalf("%s: status = %d", tc.kind, rr.Code)
		}
		body := decodeBody(t, rr)
		if body["error_code"] != tc.code || body["retryable"] != tc.retryable {
			t.Fatalf("%s: body = %v", tc.kind, body)
		}
		extra, _ := body["context"].(map[string]any)
		if extra["stage"] != string(tc.stage) || extra["code"] != "x = 1 / 0" || !strings.Contains(extra["trace"].(string), "division") {
			t.Fatalf("%s: context = %v", tc.kind, extra)
		}
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	analyst := &fakeAnalyst{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Datasets: &fakeLoader{table: salesTable()}, Analyst: analyst})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/ask", "sales.csv", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(analyst.requests) != 0 {
		t.Fatal("analyst should not run without a question")
	}
}

func TestAskFromObjectStore(t *testing.T) {
	loader := &fakeLoader{table: salesTable()}
	analyst := &fakeAnalyst{}
	deps := Dependencies{Datasets: loader, Analyst: analyst}

	rr := httptest.NewRecorder()
	NewHandler(loadConfig(t, nil), deps).ServeHTTP(rr, jsonRequest("/v1/ask", `{"object_key":"uploads/sales.csv","question":"total?"}`))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status without store = %d", rr.Code)
	}

	deps.ObjectStore = fakeStore{}
	rr = httptest.NewRecorder()
	NewHandler(loadConfig(t, nil), deps).ServeHTTP(rr, jsonRequest("/v1/ask", `{"object_key":"uploads/sales.csv","question":"total?"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(loader.objectKeys) != 1 || loader.objectKeys[0] != "uploads/sales.csv" {
		t.Fatalf("object keys = %v", loader.objectKeys)
	}
}

func TestListDatasets(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(loadConfig(t, nil), Dependencies{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status without store = %d", rr.Code)
	}

	var prefixes []string
	store := fakeStore{
		datasets: []storage.DatasetObject{{Key: "team/events.csv", Size: 120}, {Key: "team/sales.parquet", Size: 64}},
		prefixes: &prefixes,
	}
	rr = httptest.NewRecorder()
	NewHandler(loadConfig(t, nil), Dependencies{ObjectStore: store}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets?prefix=team/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	datasets, _ := body["datasets"].([]any)
	if len(datasets) != 2 || body["prefix"] != "team/" || len(prefixes) != 1 || prefixes[0] != "team/" {
		t.Fatalf("body = %v prefixes = %v", body, prefixes)
	}
	if first, _ := datasets[0].(map[string]any); first["key"] != "team/events.csv" || first["size"] != 120.0 {
		t.Fatalf("first dataset = %v", datasets[0])
	}

	rr = httptest.NewRecorder()
	NewHandler(loadConfig(t, nil), Dependencies{ObjectStore: fakeStore{err: errors.New("bucket unreachable")}}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	if rr.Code != http.StatusBadGateway || decodeBody(t, rr)["error_code"] != "OBJECT_STORE_FAILED" {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestDatasetErrorsMapToStatus(t *testing.T) {
	cases := map[error]int{
		dataset.ErrTooLarge:       http.StatusRequestEntityTooLarge,
		storage.ErrObjectNotFound: http.StatusNotFound,
		errors.New("bad csv"):     http.StatusBadRequest,
	}
	for cause, want := range cases {
		h := NewHandler(loadConfig(t, nil), Dependencies{Datasets: &fakeLoader{err: cause}})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, multipartRequest(t, "/v1/preview", "x.csv", nil))
		if rr.Code != want {
			t.Fatalf("%v: status = %d, want %d", cause, rr.Code, want)
		}
	}
}

func TestUploadLimitIsEnforced(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKFRAME_DATASET_MAX_UPLOAD_BYTES": "1"})
	h := NewHandler(cfg, Dependencies{Datasets: &fakeLoader{table: salesTable()}})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "big.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(bytes.Repeat([]byte("a"), 2<<20))
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/preview", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestPreviewReturnsSchemaAndRows(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKFRAME_DATASET_PREVIEW_ROWS": "2"})
	h := NewHandler(cfg, Dependencies{Datasets: &fakeLoader{table: salesTable()}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/preview", "sales.csv", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body previewResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Schema) != 2 || body.Schema[1].Type != table.TypeFloat {
		t.Fatalf("schema = %+v", body.Schema)
	}
	if len(body.Rows) != 2 || body.TotalRows != 3 {
		t.Fatalf("rows = %d total = %d", len(body.Rows), body.TotalRows)
	}
}

func TestQueryEndpoint(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Table: salesTable(), ScannedRows: 3}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Datasets: &fakeLoader{table: salesTable()}, QueryEngine: engine})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/query", "sales.csv", map[string]string{"sql": "DELETE FROM df"}))
	if rr.Code != http.StatusBadRequest || decodeBody(t, rr)["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/query", "sales.csv", map[string]string{"sql": "SELECT * FROM df"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(engine.requests) != 1 || engine.requests[0].Tables["df"] == nil {
		t.Fatalf("engine requests = %+v", engine.requests)
	}
}

func TestProtectedRoutesRequireAuthAndRoles(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKFRAME_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("viewer-key:alice:viewer,analyst-key:bob")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Datasets:       &fakeLoader{table: salesTable()},
		Analyst:        &fakeAnalyst{},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/preview", "sales.csv", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}

	for _, tc := range []struct {
		path, key string
		want      int
	}{
		{"/v1/preview", "viewer-key", http.StatusOK},
		{"/v1/ask", "viewer-key", http.StatusForbidden},
		{"/v1/ask", "analyst-key", http.StatusOK},
	} {
		req := multipartRequest(t, tc.path, "sales.csv", map[string]string{"question": "q"})
		req.Header.Set("X-API-Key", tc.key)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s with %s: status = %d, body = %s", tc.path, tc.key, rr.Code, rr.Body.String())
		}
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKFRAME_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Datasets: &fakeLoader{table: salesTable()}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, "/v1/preview", "sales.csv", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	merged := map[string]string{"ASKFRAME_AI_API_KEY": "test-key"}
	for key, value := range values {
		merged[key] = value
	}
	cfg, err := config.Load("askframe-api", mapLookup(merged))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	return body
}

func multipartRequest(t *testing.T, path, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(part, "region,sales\n")
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func salesTable() *table.Table {
	return &table.Table{Columns: []table.Column{
		{Name: "region", Type: table.TypeString, Values: []any{"north", "south", "north"}},
		{Name: "sales", Type: table.TypeFloat, Values: []any{10.0, 20.0, 30.0}},
	}}
}

type fakeLoader struct {
	table      *table.Table
	err        error
	names      []string
	bodies     [][]byte
	objectKeys []string
}

func (f *fakeLoader) LoadReader(_ context.Context, name string, body io.Reader) (*table.Table, error) {
	raw, _ := io.ReadAll(body)
	f.names = append(f.names, name)
	f.bodies = append(f.bodies, raw)
	if f.err != nil {
		return nil, f.err
	}
	return f.table, nil
}

func (f *fakeLoader) LoadObject(_ context.Context, _ storage.ObjectStore, key string) (*table.Table, error) {
	f.objectKeys = append(f.objectKeys, key)
	if f.err != nil {
		return nil, f.err
	}
	return f.table, nil
}

type fakeAnalyst struct {
	outcome  pipeline.Outcome
	requests []pipeline.Request
}

func (f *fakeAnalyst) Run(_ context.Context, req pipeline.Request) pipeline.Outcome {
	f.requests = append(f.requests, req)
	return f.outcome
}

type fakeEngine struct {
	result   query.Result
	requests []query.Request
}

func (f *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, nil
}

type fakeStore struct {
	datasets []storage.DatasetObject
	err      error
	prefixes *[]string
}

func (fakeStore) Open(_ context.Context, key string) (io.ReadCloser, storage.DatasetObject, error) {
	return io.NopCloser(strings.NewReader("")), storage.DatasetObject{Key: key}, nil
}

func (f fakeStore) List(_ context.Context, prefix string) ([]storage.DatasetObject, error) {
	if f.prefixes != nil {
		*f.prefixes = append(*f.prefixes, prefix)
	}
	return f.datasets, f.err
}
