package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askframe_http_requests_total",
			Help: "HTTP requests by method, matched route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "askframe_http_request_duration_seconds",
			Help: "HTTP latency by matched route. /v1/ask spans generation and execution.",
			// Ask requests wait on the model, so the tail runs well past DefBuckets.
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)
	httpResponseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askframe_http_response_size_bytes",
			Help:    "Response body size by matched route. Figure payloads dominate /v1/ask.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route"},
	)

	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askframe_pipeline_runs_total",
			Help: "Total number of question runs by outcome (success or failure kind).",
		},
		[]string{"outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askframe_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	pipelineOutputsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askframe_pipeline_outputs_total",
			Help: "Total number of rendered outputs by kind.",
		},
		[]string{"kind"},
	)
	sandboxSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askframe_sandbox_steps",
			Help:    "Interpreter steps consumed per sandbox execution.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpResponseBytes,
		pipelineRunsTotal,
		pipelineStageDurationSeconds,
		pipelineOutputsTotal,
		sandboxSteps,
	)
}

func ObservePipelineRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStageDuration(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveOutput(kind string) {
	pipelineOutputsTotal.WithLabelValues(kind).Inc()
}

func ObserveSandboxSteps(steps uint64) {
	sandboxSteps.Observe(float64(steps))
}
