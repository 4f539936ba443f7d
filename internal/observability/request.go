package observability

import (
	"context"
	"sync"
)

type ctxKey string

const requestKey ctxKey = "askframe_request"

// RequestInfo is shared by every context derived from one HTTP request. The
// access log reads it after the handler returns, so handlers deep in the
// stack can report who asked and how the question ended.
type RequestInfo struct {
	TraceID string

	mu        sync.Mutex
	principal string
	stage     string
	outcome   string
}

// RunSummary is a point-in-time copy of the annotated fields.
type RunSummary struct {
	Principal string
	Stage     string
	Outcome   string
}

func (i *RequestInfo) Summary() RunSummary {
	i.mu.Lock()
	defer i.mu.Unlock()
	return RunSummary{Principal: i.principal, Stage: i.stage, Outcome: i.outcome}
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, requestKey, &RequestInfo{TraceID: traceID})
}

func RequestInfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestKey).(*RequestInfo)
	return info, ok && info != nil
}

func TraceIDFromContext(ctx context.Context) string {
	info, ok := RequestInfoFromContext(ctx)
	if !ok {
		return ""
	}
	return info.TraceID
}

// AnnotateRun records the last pipeline stage reached and the run outcome.
// Contexts outside an HTTP request are ignored.
func AnnotateRun(ctx context.Context, stage, outcome string) {
	info, ok := RequestInfoFromContext(ctx)
	if !ok {
		return
	}
	info.mu.Lock()
	info.stage, info.outcome = stage, outcome
	info.mu.Unlock()
}

func AnnotatePrincipal(ctx context.Context, principal string) {
	info, ok := RequestInfoFromContext(ctx)
	if !ok {
		return
	}
	info.mu.Lock()
	info.principal = principal
	info.mu.Unlock()
}
