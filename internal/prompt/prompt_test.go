package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askframe/askframe/internal/table"
)

func TestBuildListsColumnsAndQuestion(t *testing.T) {
	schema := table.Schema{
		{Name: "region", Type: table.TypeString},
		{Name: "sales", Type: table.TypeFloat},
	}
	got := Default().Build(schema, "What is the average of sales?")

	if !strings.Contains(got, "- region: object\n- sales: float64") {
		t.Fatalf("prompt missing column lines:\n%s", got)
	}
	if !strings.Contains(got, `"""What is the average of sales?"""`) {
		t.Fatalf("prompt missing quoted question:\n%s", got)
	}
	for _, want := range []string{"ONLY use these columns", "```python", "output_df", "output_value", "plt.show()"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestDefaultTemplateExplainsPositionalRows(t *testing.T) {
	got := Default().Build(table.Schema{{Name: "sales", Type: table.TypeFloat}}, "Which row sold most?")
	for _, want := range []string{
		"DataFrames carry no row labels",
		"`idxmax`/`idxmin` give positions",
		"`sort_values(...).head(n)`",
		"`describe()` returns its statistic names",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuildKeepsQuestionVerbatim(t *testing.T) {
	question := "  plot {{columns}} please\n"
	got := Default().Build(table.Schema{{Name: "a", Type: table.TypeInt}}, question)
	if !strings.Contains(got, `"""`+question+`"""`) {
		t.Fatalf("question altered:\n%s", got)
	}
}

func TestBuildWithEmptySchema(t *testing.T) {
	got := Default().Build(nil, "anything")
	if strings.Contains(got, columnsPlaceholder) {
		t.Fatal("columns placeholder left in prompt")
	}
}

func TestNewValidatesPlaceholders(t *testing.T) {
	if _, err := New("no placeholders"); err == nil {
		t.Fatal("expected placeholder error")
	}
	b, err := New("cols:\n{{columns}}\nq: {{question}}")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got := b.Build(table.Schema{{Name: "x", Type: table.TypeInt}}, "sum x")
	if got != "cols:\n- x: int64\nq: sum x" {
		t.Fatalf("Build() = %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	b, err := LoadFile("")
	if err != nil || b.template != DefaultTemplate {
		t.Fatalf("LoadFile(\"\") = %v, %v", b, err)
	}

	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("{{columns}}|{{question}}"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}
	b, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := b.Build(nil, "q"); got != "|q" {
		t.Fatalf("Build() = %q", got)
	}
}
