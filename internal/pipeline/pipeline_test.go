package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/askframe/askframe/internal/codegen"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/extract"
	"github.com/askframe/askframe/internal/observability"
	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/sandbox"
	"github.com/askframe/askframe/internal/table"
)

func salesTable() *table.Table {
	return &table.Table{Columns: []table.Column{
		{Name: "region", Type: table.TypeString, Values: []any{"north", "south", "north"}},
		{Name: "sales", Type: table.TypeFloat, Values: []any{10.0, 20.0, 30.0}},
	}}
}

type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (codegen.Completion, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return codegen.Completion{}, s.err
	}
	return codegen.Completion{Text: s.text, Provider: "stub", Model: "stub"}, nil
}

func TestRunAnswersMeanQuestionWithValueOnly(t *testing.T) {
	generator := &stubGenerator{text: "```python\nimport pandas as pd\noutput_value = df['sales'].mean()\n```"}
	analyst := &Analyst{Generator: generator}

	outcome := analyst.Run(context.Background(), Request{Table: salesTable(), Question: "What is the average of sales?"})

	if !outcome.Succeeded() {
		t.Fatalf("failure = %v\n%s", outcome.Failure, outcome.Failure.Trace)
	}
	if got := outcome.Report.Kinds(); !reflect.DeepEqual(got, []render.Kind{render.KindValue}) {
		t.Fatalf("kinds = %v", got)
	}
	if outcome.Report.Outputs[0].Value != 20.0 {
		t.Fatalf("value = %#v", outcome.Report.Outputs[0].Value)
	}
	if strings.Contains(outcome.Code, "import") || strings.Contains(outcome.Code, "```") {
		t.Fatalf("code = %q", outcome.Code)
	}
	if outcome.Candidate.RemovedImports != 1 {
		t.Fatalf("removed imports = %d", outcome.Candidate.RemovedImports)
	}
	if len(generator.prompts) != 1 || !strings.Contains(generator.prompts[0], "- sales: float64") {
		t.Fatalf("prompts = %q", generator.prompts)
	}
}

func TestRunDivisionByZeroReportsSandboxFailure(t *testing.T) {
	analyst := &Analyst{Generator: &stubGenerator{text: "```python\nratio = 1 / 0\noutput_value = ratio\n```"}}

	outcome := analyst.Run(context.Background(), Request{Table: salesTable(), Question: "ratio?"})

	if outcome.Failure == nil {
		t.Fatalf("expected failure")
	}
	if outcome.Failure.Stage != StageExecute || outcome.Failure.Kind != KindSandbox {
		t.Fatalf("failure = %+v", outcome.Failure)
	}
	if !strings.Contains(outcome.Failure.Trace, "division by zero") {
		t.Fatalf("trace = %q", outcome.Failure.Trace)
	}
	if !outcome.Report.Empty() {
		t.Fatalf("report = %v", outcome.Report.Kinds())
	}
	if outcome.Code == "" {
		t.Fatalf("failed outcome lost the candidate code")
	}
}

func TestRunAnnotatesRequestWithStageAndOutcome(t *testing.T) {
	ctx := observability.ContextWithTraceID(context.Background(), "trace-run")
	failing := &Analyst{Generator: &stubGenerator{text: "```python\nratio = 1 / 0\n```"}}
	failing.Run(ctx, Request{Table: salesTable(), Question: "ratio?"})

	info, _ := observability.RequestInfoFromContext(ctx)
	if got := info.Summary(); got.Stage != string(StageExecute) || got.Outcome != string(KindSandbox) {
		t.Fatalf("failed run summary = %+v", got)
	}

	ctx = observability.ContextWithTraceID(context.Background(), "trace-ok")
	answering := &Analyst{Generator: &stubGenerator{text: "```python\noutput_value = 1\n```"}}
	answering.Run(ctx, Request{Table: salesTable(), Question: "one?"})

	info, _ = observability.RequestInfoFromContext(ctx)
	if got := info.Summary(); got.Stage != string(StageClassify) || got.Outcome != "success" {
		t.Fatalf("answered run summary = %+v", got)
	}
}

func TestRunGenerationFailure(t *testing.T) {
	cause := &codegen.GenerationError{Provider: "stub", Model: "m", Err: errors.New("503")}
	analyst := &Analyst{Generator: &stubGenerator{err: cause}}

	outcome := analyst.Run(context.Background(), Request{Table: salesTable(), Question: "anything"})

	if outcome.Failure == nil || outcome.Failure.Kind != KindGeneration || outcome.Failure.Stage != StageGenerate {
		t.Fatalf("failure = %+v", outcome.Failure)
	}
	if !errors.Is(outcome.Failure, cause) {
		t.Fatalf("failure does not wrap cause")
	}
	if outcome.Prompt == "" || outcome.Code != "" {
		t.Fatalf("prompt = %q code = %q", outcome.Prompt, outcome.Code)
	}
}

func TestRunStrictPolicyRejectsUnfencedResponse(t *testing.T) {
	analyst := &Analyst{Generator: &stubGenerator{text: "output_value = 1"}, Policy: extract.PolicyStrict}

	outcome := analyst.Run(context.Background(), Request{Table: salesTable(), Question: "one"})

	if outcome.Failure == nil || outcome.Failure.Kind != KindExtraction {
		t.Fatalf("failure = %+v", outcome.Failure)
	}
	if !errors.Is(outcome.Failure, extract.ErrNoCodeFence) {
		t.Fatalf("error = %v", outcome.Failure.Err)
	}
}

func TestRunRequiresQuestion(t *testing.T) {
	generator := &stubGenerator{text: "output_value = 1"}
	outcome := (&Analyst{Generator: generator}).Run(context.Background(), Request{Table: salesTable(), Question: "  "})

	if outcome.Failure == nil || !errors.Is(outcome.Failure, ErrQuestionRequired) {
		t.Fatalf("failure = %+v", outcome.Failure)
	}
	if len(generator.prompts) != 0 {
		t.Fatalf("generator was called")
	}
}

func TestRunLeavesTableUntouchedAndAnalystReusable(t *testing.T) {
	tbl := salesTable()
	before := tbl.Clone()
	generator := &stubGenerator{text: "df['sales'] = 0\noutput_df = df"}
	analyst := &Analyst{Generator: generator}

	for i := 0; i < 2; i++ {
		outcome := analyst.Run(context.Background(), Request{Table: tbl, Question: "zero it"})
		if !outcome.Succeeded() {
			t.Fatalf("run %d failure = %v", i, outcome.Failure)
		}
	}
	if !reflect.DeepEqual(tbl, before) {
		t.Fatalf("table mutated: %s", tbl)
	}
}

func TestRunEmptyReportIsSuccess(t *testing.T) {
	analyst := &Analyst{Generator: &stubGenerator{text: "x = 1"}}

	outcome := analyst.Run(context.Background(), Request{Table: salesTable(), Question: "nothing"})

	if !outcome.Succeeded() || !outcome.Report.Empty() {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestKindOfPrefersTypedErrors(t *testing.T) {
	cases := []struct {
		stage Stage
		err   error
		want  FailureKind
	}{
		{StageExecute, &sandbox.ExecutionError{Err: errors.New("boom")}, KindSandbox},
		{StageClassify, &render.RenderError{Kind: render.KindFigure, Err: errors.New("png")}, KindRender},
		{StageExtract, extract.ErrNoCodeFence, KindExtraction},
		{StageGenerate, errors.New("plain"), KindGeneration},
		{StageClassify, errors.New("plain"), KindRender},
	}
	for _, tc := range cases {
		if got := kindOf(tc.stage, tc.err); got != tc.want {
			t.Fatalf("kindOf(%s, %v) = %s, want %s", tc.stage, tc.err, got, tc.want)
		}
	}
}

func TestTraceIncludesBacktrace(t *testing.T) {
	err := &sandbox.ExecutionError{Err: errors.New("bad"), Backtrace: "Traceback\n  generated.py:1:1"}
	trace := Trace(err)
	if !strings.Contains(trace, "bad") || !strings.Contains(trace, "generated.py:1:1") {
		t.Fatalf("trace = %q", trace)
	}
	if Trace(nil) != "" {
		t.Fatalf("nil trace should be empty")
	}
}

func TestNewAnalystAppliesConfig(t *testing.T) {
	cfg, err := config.Load("askframe-test", func(key string) (string, bool) {
		switch key {
		case "ASKFRAME_AI_API_KEY":
			return "k", true
		case "ASKFRAME_SANDBOX_STRICT_FENCE":
			return "true", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	analyst, err := NewAnalyst(cfg, &stubGenerator{}, nil, nil)
	if err != nil {
		t.Fatalf("NewAnalyst() error = %v", err)
	}
	if analyst.Policy != extract.PolicyStrict {
		t.Fatalf("policy = %v", analyst.Policy)
	}
	if analyst.Render.PreviewRows != cfg.Dataset.PreviewRows {
		t.Fatalf("preview rows = %d", analyst.Render.PreviewRows)
	}
}
