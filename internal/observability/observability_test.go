package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/askframe/askframe/internal/config"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return NewLogger(config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "askframe"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}, buf)
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		records = append(records, record)
	}
	return records
}

// askMux mirrors the API layout: pipeline routes plus the UI catch-all.
func askMux(ask http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/ask", ask)
	mux.HandleFunc("GET /{path...}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	})
	return mux
}

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf)
	logger.Debug("hidden")
	logger.Info("pipeline_stage", slog.String("stage", "generate"), slog.Duration("duration", 1500*time.Microsecond))

	records := decodeLines(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	record := records[0]
	if record["service"] != "askframe" || record["profile"] != "test" {
		t.Fatalf("record = %v", record)
	}
	if record["stage"] != "generate" {
		t.Fatalf("stage = %v", record["stage"])
	}
	if _, ok := record["duration"]; ok {
		t.Fatalf("raw duration should be rewritten: %v", record)
	}
	if record["duration_ms"] != 1.5 {
		t.Fatalf("duration_ms = %v", record["duration_ms"])
	}
}

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestAnnotationsWithoutRequestAreIgnored(t *testing.T) {
	ctx := context.Background()
	AnnotateRun(ctx, "execute", "sandbox")
	AnnotatePrincipal(ctx, "analyst")
	if got := TraceIDFromContext(ctx); got != "" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}

	ctx = ContextWithTraceID(ctx, "abc123")
	AnnotateRun(context.WithValue(ctx, ctxKey("child"), 1), "classify", "success")
	info, ok := RequestInfoFromContext(ctx)
	if !ok || info.TraceID != "abc123" {
		t.Fatalf("info = %+v, ok = %v", info, ok)
	}
	if got := info.Summary(); got.Stage != "classify" || got.Outcome != "success" {
		t.Fatalf("summary = %+v", got)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"":                  unmatchedRoute,
		"POST /v1/ask":      "/v1/ask",
		"GET /{path...}":    "/{path...}",
		"/metrics":          "/metrics",
		"GET host/v1/query": "host/v1/query",
	}
	for pattern, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Pattern = pattern
		if got := RouteLabel(r); got != want {
			t.Fatalf("RouteLabel(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestMetricsMiddlewareLabelsAskRoute(t *testing.T) {
	h := TraceMiddleware(MetricsMiddleware(askMux(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":"GENERATION_FAILED"}`))
	})))

	askBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/ask", "422"))
	uiBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/{path...}", "200"))
	missBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodDelete, unmatchedRoute, "405"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/ask", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/index.html", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/v1/ask", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/ask", "422")); got != askBefore+1 {
		t.Fatalf("ask requests = %v, want %v", got, askBefore+1)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/{path...}", "200")); got != uiBefore+2 {
		t.Fatalf("ui requests = %v, want %v", got, uiBefore+2)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodDelete, unmatchedRoute, "405")); got != missBefore+1 {
		t.Fatalf("unmatched requests = %v, want %v", got, missBefore+1)
	}
	if testutil.CollectAndCount(httpResponseBytes) == 0 {
		t.Fatal("expected response size observations")
	}
}

func TestLoggingMiddlewareReportsRunOutcome(t *testing.T) {
	var buf bytes.Buffer
	h := TraceMiddleware(LoggingMiddleware(testLogger(&buf))(askMux(func(w http.ResponseWriter, r *http.Request) {
		AnnotatePrincipal(r.Context(), "analyst")
		AnnotateRun(r.Context(), "execute", "sandbox")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set(traceHeader, "trace-ask")
	h.ServeHTTP(httptest.NewRecorder(), req)

	records := decodeLines(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1: %s", len(records), buf.String())
	}
	record := records[0]
	want := map[string]any{
		"msg":       "http_request",
		"level":     "INFO",
		"trace_id":  "trace-ask",
		"route":     "/v1/ask",
		"principal": "analyst",
		"stage":     "execute",
		"outcome":   "sandbox",
		"status":    float64(422),
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("%s = %v, want %v (record %v)", key, record[key], value, record)
		}
	}
	if _, ok := record["duration_ms"]; !ok {
		t.Fatalf("missing duration_ms: %v", record)
	}
}

func TestLoggingMiddlewareWarnsOnServerErrors(t *testing.T) {
	var buf bytes.Buffer
	h := TraceMiddleware(LoggingMiddleware(testLogger(&buf))(askMux(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/ask", nil))

	records := decodeLines(t, &buf)
	if len(records) != 1 || records[0]["level"] != "WARN" {
		t.Fatalf("records = %v", records)
	}
	if _, ok := records[0]["outcome"]; ok {
		t.Fatalf("unannotated request should not log an outcome: %v", records[0])
	}
}

func TestPipelineMetricsCount(t *testing.T) {
	before := testutil.ToFloat64(pipelineRunsTotal.WithLabelValues("success"))
	ObservePipelineRun("success")
	if got := testutil.ToFloat64(pipelineRunsTotal.WithLabelValues("success")); got != before+1 {
		t.Fatalf("runs_total = %v, want %v", got, before+1)
	}

	beforeOutputs := testutil.ToFloat64(pipelineOutputsTotal.WithLabelValues("figure"))
	ObserveOutput("figure")
	ObserveOutput("figure")
	if got := testutil.ToFloat64(pipelineOutputsTotal.WithLabelValues("figure")); got != beforeOutputs+2 {
		t.Fatalf("outputs_total = %v", got)
	}

	ObserveStageDuration("execute", 20*time.Millisecond)
	ObserveSandboxSteps(1234)
}
