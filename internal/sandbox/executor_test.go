package sandbox

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

func salesTable() *table.Table {
	return &table.Table{Columns: []table.Column{
		{Name: "region", Type: table.TypeString, Values: []any{"north", "south", "north"}},
		{Name: "sales", Type: table.TypeFloat, Values: []any{10.0, 20.0, 30.0}},
		{Name: "units", Type: table.TypeInt, Values: []any{int64(1), int64(2), int64(3)}},
	}}
}

func execute(t *testing.T, cfg Config, code string, tbl *table.Table) Result {
	t.Helper()
	result, err := New(cfg).Execute(context.Background(), code, tbl)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return result
}

func TestExecuteBindsOutputValue(t *testing.T) {
	result := execute(t, Config{}, "output_value = 42\n", salesTable())

	value, ok := result.Lookup("output_value")
	if !ok {
		t.Fatalf("output_value not bound")
	}
	if got, _ := value.(starlark.Int).Int64(); got != 42 {
		t.Fatalf("output_value = %v", value)
	}
	if _, ok := result.Lookup("output_df"); ok {
		t.Fatalf("output_df should not be bound")
	}
	if !result.Figure.Empty() {
		t.Fatalf("expected empty figure")
	}
}

func TestExecuteComputesColumnMean(t *testing.T) {
	result := execute(t, Config{}, `output_value = df["sales"].mean()`, salesTable())

	value, _ := result.Lookup("output_value")
	if value != starlark.Float(20) {
		t.Fatalf("output_value = %v", value)
	}
}

func TestExecuteKeepsCallerTableUnchanged(t *testing.T) {
	tbl := salesTable()
	before := tbl.Clone()
	code := strings.Join([]string{
		`df["sales"] = 0`,
		`df["extra"] = df["units"] * 2`,
		`df = df.dropna()`,
		`output_df = df`,
	}, "\n")

	result := execute(t, Config{}, code, tbl)

	if !reflect.DeepEqual(tbl, before) {
		t.Fatalf("caller table mutated: %#v", tbl)
	}
	value, _ := result.Lookup("output_df")
	out := value.(*DataFrame).Table()
	if out.NumColumns() != 4 || out.Columns[1].Values[0] != int64(0) {
		t.Fatalf("output_df = %s", out)
	}
}

func TestExecuteRejectsFileAccess(t *testing.T) {
	_, err := New(Config{}).Execute(context.Background(), `data = open("/etc/passwd")`, salesTable())

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ExecutionError", err)
	}
	if !strings.Contains(err.Error(), "open") {
		t.Fatalf("error = %v", err)
	}
}

func TestExecuteRejectsReflection(t *testing.T) {
	for _, code := range []string{
		`x = getattr(df, "columns")`,
		`x = hasattr(df, "columns")`,
		`x = dir(df)`,
		`x = type(df)`,
		`fail("boom")`,
	} {
		_, err := New(Config{}).Execute(context.Background(), code, salesTable())
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("%s: error = %v, want ExecutionError", code, err)
		}
	}
}

func TestExecuteRejectsLoad(t *testing.T) {
	_, err := New(Config{}).Execute(context.Background(), `load("os.star", "system")`, salesTable())
	if !errors.Is(err, ErrLoadNotAllowed) {
		t.Fatalf("error = %v, want ErrLoadNotAllowed", err)
	}
}

func TestExecuteReportsDivisionByZero(t *testing.T) {
	_, err := New(Config{}).Execute(context.Background(), "x = 1\noutput_value = x / 0\n", salesTable())

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ExecutionError", err)
	}
	if !strings.Contains(execErr.Error(), "division") || !strings.Contains(execErr.Backtrace, "division") {
		t.Fatalf("error = %v, backtrace = %q", execErr, execErr.Backtrace)
	}
}

func TestExecuteEnforcesStepBudget(t *testing.T) {
	code := "x = 0\nwhile True:\n    x += 1\n"
	_, err := New(Config{MaxSteps: 10000}).Execute(context.Background(), code, salesTable())
	if !errors.Is(err, ErrStepBudgetExceeded) {
		t.Fatalf("error = %v, want ErrStepBudgetExceeded", err)
	}
}

func TestExecuteEnforcesTimeout(t *testing.T) {
	code := "while True:\n    pass\n"
	_, err := New(Config{Timeout: 50 * time.Millisecond}).Execute(context.Background(), code, salesTable())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestExecuteCapturesPrintOutput(t *testing.T) {
	result := execute(t, Config{MaxOutputBytes: 1024}, "print(\"hello\")\nprint(len(df))\n", salesTable())

	if result.Stdout != "hello\n3\n" || result.Truncated {
		t.Fatalf("stdout = %q truncated = %v", result.Stdout, result.Truncated)
	}
}

func TestExecuteTruncatesPrintOutput(t *testing.T) {
	result := execute(t, Config{MaxOutputBytes: 10}, "for i in range(100):\n    print(i)\n", salesTable())

	if len(result.Stdout) != 10 || !result.Truncated {
		t.Fatalf("stdout = %q truncated = %v", result.Stdout, result.Truncated)
	}
}

func TestExecuteCountsSteps(t *testing.T) {
	result := execute(t, Config{}, "total = 0\nfor i in range(10):\n    total += i\n", salesTable())
	if result.Steps == 0 {
		t.Fatalf("Steps = 0")
	}
	value, _ := result.Lookup("total")
	if got, _ := value.(starlark.Int).Int64(); got != 45 {
		t.Fatalf("total = %v", value)
	}
}

func TestCapabilitiesAreFixed(t *testing.T) {
	names := Capabilities()
	has := make(map[string]bool, len(names))
	for _, name := range names {
		has[name] = true
	}
	for _, want := range []string{"df", "pd", "plt", "sns", "print", "len", "range", "min", "max", "sum", "abs", "round", "sorted", "set"} {
		if !has[want] {
			t.Fatalf("capability %q missing from %v", want, names)
		}
	}
	for _, forbidden := range []string{"getattr", "hasattr", "dir", "type", "load", "open", "fail"} {
		if has[forbidden] {
			t.Fatalf("capability %q should not be exposed", forbidden)
		}
	}
}
