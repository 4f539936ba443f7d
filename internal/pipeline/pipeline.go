package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/askframe/askframe/internal/codegen"
	"github.com/askframe/askframe/internal/extract"
	"github.com/askframe/askframe/internal/observability"
	"github.com/askframe/askframe/internal/prompt"
	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/sandbox"
	"github.com/askframe/askframe/internal/table"
)

type Stage string

const (
	StagePrompt   Stage = "prompt"
	StageGenerate Stage = "generate"
	StageExtract  Stage = "extract"
	StageExecute  Stage = "execute"
	StageClassify Stage = "classify"
)

type FailureKind string

const (
	KindGeneration FailureKind = "generation"
	KindExtraction FailureKind = "extraction"
	KindSandbox    FailureKind = "sandbox"
	KindRender     FailureKind = "render"
)

var ErrQuestionRequired = errors.New("question is required")

// Executor runs candidate code against a private copy of the table.
type Executor interface {
	Execute(ctx context.Context, code string, tbl *table.Table) (sandbox.Result, error)
}

type Analyst struct {
	Prompt    *prompt.Builder
	Generator codegen.Generator
	Policy    extract.Policy
	Executor  Executor
	Render    render.Options
	Logger    *slog.Logger
	Clock     func() time.Time
}

type Request struct {
	Table    *table.Table
	Question string
}

// Failure describes the stage that stopped a run. Trace carries everything
// known about the cause: the error chain and, for sandbox failures, the
// interpreter backtrace or host stack.
type Failure struct {
	Stage Stage
	Kind  FailureKind
	Err   error
	Trace string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Outcome is either a report or a failure. Prompt and Code hold whatever the
// run produced before it stopped.
type Outcome struct {
	Report    render.Report
	Failure   *Failure
	Prompt    string
	Code      string
	Candidate extract.Candidate
	Steps     uint64
	Duration  time.Duration
}

func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Run answers one question. It never panics on bad model output; every stage
// error is returned as a Failure in the outcome.
func (a *Analyst) Run(ctx context.Context, req Request) (outcome Outcome) {
	a.ensureDefaults()
	started := a.Clock()
	defer func() {
		outcome.Duration = a.Clock().Sub(started)
		a.finish(ctx, req, outcome)
	}()

	if strings.TrimSpace(req.Question) == "" {
		outcome.Failure = a.fail(StagePrompt, ErrQuestionRequired)
		return outcome
	}
	if req.Table == nil {
		req.Table = &table.Table{}
	}

	stageStarted := a.Clock()
	outcome.Prompt = a.Prompt.Build(table.Describe(req.Table), req.Question)
	a.stageDone(ctx, StagePrompt, stageStarted)

	if a.Generator == nil {
		outcome.Failure = a.fail(StageGenerate, &codegen.GenerationError{Provider: "none", Model: "none", Err: errors.New("generator is not configured")})
		return outcome
	}
	stageStarted = a.Clock()
	completion, err := a.Generator.Generate(ctx, outcome.Prompt)
	a.stageDone(ctx, StageGenerate, stageStarted)
	if err != nil {
		outcome.Failure = a.fail(StageGenerate, err)
		return outcome
	}

	stageStarted = a.Clock()
	candidate, err := extract.Extract(completion.Text, a.Policy)
	a.stageDone(ctx, StageExtract, stageStarted)
	if err != nil {
		outcome.Failure = a.fail(StageExtract, err)
		outcome.Code = completion.Text
		return outcome
	}
	outcome.Candidate = candidate
	outcome.Code = candidate.Code

	stageStarted = a.Clock()
	result, err := a.Executor.Execute(ctx, candidate.Code, req.Table)
	a.stageDone(ctx, StageExecute, stageStarted)
	if err != nil {
		outcome.Failure = a.fail(StageExecute, err)
		return outcome
	}
	outcome.Steps = result.Steps
	observability.ObserveSandboxSteps(result.Steps)

	stageStarted = a.Clock()
	report, err := render.Classify(req.Question, result, a.Render)
	a.stageDone(ctx, StageClassify, stageStarted)
	if err != nil {
		outcome.Failure = a.fail(StageClassify, err)
		return outcome
	}
	outcome.Report = report
	return outcome
}

func (a *Analyst) ensureDefaults() {
	if a.Prompt == nil {
		a.Prompt = prompt.Default()
	}
	if a.Executor == nil {
		a.Executor = sandbox.New(sandbox.Config{})
	}
	if a.Render.PreviewRows <= 0 {
		a.Render = render.DefaultOptions()
	}
	if a.Logger == nil {
		a.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.Clock == nil {
		a.Clock = time.Now
	}
}

func (a *Analyst) stageDone(ctx context.Context, stage Stage, started time.Time) {
	elapsed := a.Clock().Sub(started)
	observability.ObserveStageDuration(string(stage), elapsed)
	a.Logger.DebugContext(ctx, "pipeline_stage",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("stage", string(stage)),
		slog.Duration("duration", elapsed),
	)
}

func (a *Analyst) fail(stage Stage, err error) *Failure {
	return &Failure{Stage: stage, Kind: kindOf(stage, err), Err: err, Trace: Trace(err)}
}

func (a *Analyst) finish(ctx context.Context, req Request, outcome Outcome) {
	traceID := observability.TraceIDFromContext(ctx)
	if outcome.Failure != nil {
		observability.ObservePipelineRun(string(outcome.Failure.Kind))
		observability.AnnotateRun(ctx, string(outcome.Failure.Stage), string(outcome.Failure.Kind))
		a.Logger.WarnContext(ctx, "question failed",
			slog.String("trace_id", traceID),
			slog.String("stage", string(outcome.Failure.Stage)),
			slog.String("kind", string(outcome.Failure.Kind)),
			slog.Any("error", outcome.Failure.Err),
			slog.Duration("duration", outcome.Duration),
		)
		return
	}
	observability.ObservePipelineRun("success")
	observability.AnnotateRun(ctx, string(StageClassify), "success")
	for _, kind := range outcome.Report.Kinds() {
		observability.ObserveOutput(string(kind))
	}
	a.Logger.InfoContext(ctx, "question answered",
		slog.String("trace_id", traceID),
		slog.Int("columns", req.Table.NumColumns()),
		slog.Int("rows", req.Table.NumRows()),
		slog.Any("outputs", outcome.Report.Kinds()),
		slog.Uint64("steps", outcome.Steps),
		slog.Duration("duration", outcome.Duration),
	)
}

// kindOf maps a stage error onto the failure taxonomy. Typed errors win over
// the stage they surfaced in.
func kindOf(stage Stage, err error) FailureKind {
	var (
		generationErr *codegen.GenerationError
		executionErr  *sandbox.ExecutionError
		renderErr     *render.RenderError
	)
	switch {
	case errors.As(err, &generationErr):
		return KindGeneration
	case errors.Is(err, extract.ErrNoCodeFence):
		return KindExtraction
	case errors.As(err, &executionErr):
		return KindSandbox
	case errors.As(err, &renderErr):
		return KindRender
	}
	switch stage {
	case StagePrompt, StageGenerate:
		return KindGeneration
	case StageExtract:
		return KindExtraction
	case StageExecute:
		return KindSandbox
	default:
		return KindRender
	}
}

// Trace renders the error chain, one cause per line, followed by the
// interpreter backtrace when the chain contains a sandbox error.
func Trace(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	for current := err; current != nil; current = errors.Unwrap(current) {
		fmt.Fprintf(&b, "%T: %v\n", current, current)
	}
	var executionErr *sandbox.ExecutionError
	if errors.As(err, &executionErr) && executionErr.Backtrace != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(executionErr.Backtrace, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
