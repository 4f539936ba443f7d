package askframe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askframe/askframe/internal/codegen"
	"github.com/askframe/askframe/internal/config"
)

type scriptedGenerator struct {
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(context.Context, string) (codegen.Completion, error) {
	text := g.responses[g.calls%len(g.responses)]
	g.calls++
	return codegen.Completion{Text: text, Provider: "scripted", Model: "scripted"}, nil
}

func factory(g codegen.Generator) GeneratorFactory {
	return func(context.Context, config.Config) (codegen.Generator, error) {
		return g, nil
	}
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte("region,sales\nnorth,10.5\nsouth,20.5\nnorth,30.5\n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func lookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestRunAnswersQuestionFromFile(t *testing.T) {
	generator := &scriptedGenerator{responses: []string{"```python\noutput_value = df['sales'].mean()\n```"}}
	var stdout, stderr bytes.Buffer

	code := Run(context.Background(), []string{"-file", writeCSV(t), "What", "is", "the", "average", "of", "sales?"}, Options{
		Stdout:       &stdout,
		Stderr:       &stderr,
		NewGenerator: factory(generator),
	})

	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	for _, want := range []string{"sales: float64", "Generated Code", "Computed Value", "20.5"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestRunReadsQuestionsFromStdinAndSurvivesFailures(t *testing.T) {
	generator := &scriptedGenerator{responses: []string{"output_value = 1 / 0", "output_value = len(df)"}}
	var stdout, stderr bytes.Buffer

	code := Run(context.Background(), []string{"-file", writeCSV(t)}, Options{
		Stdin:        strings.NewReader("first\n\nsecond\n"),
		Stdout:       &stdout,
		Stderr:       &stderr,
		NewGenerator: factory(generator),
	})

	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if generator.calls != 2 {
		t.Fatalf("generator calls = %d", generator.calls)
	}
	out := stdout.String()
	if !strings.Contains(out, "execute failed (sandbox)") || !strings.Contains(out, "division by zero") {
		t.Fatalf("stdout missing failure report:\n%s", out)
	}
	if !strings.Contains(out, "Computed Value") {
		t.Fatalf("second question was not answered:\n%s", out)
	}
}

func TestRunRequiresExactlyOneSource(t *testing.T) {
	for _, args := range [][]string{
		{"-question", "q"},
		{"-file", "a.csv", "-object", "k", "-question", "q"},
	} {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("%v: exit code = %d", args, code)
		}
	}
}

func TestRunFailsFastWithoutAPIKey(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-file", writeCSV(t), "-question", "q"}, Options{
		Lookup: lookup(map[string]string{}),
		Stderr: &stderr,
	})
	if code != 1 || !strings.Contains(stderr.String(), "ASKFRAME_AI_API_KEY") {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunReadsEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("ASKFRAME_DATASET_PREVIEW_ROWS=1\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	generator := &scriptedGenerator{responses: []string{"output_value = 1"}}
	var stdout bytes.Buffer

	code := Run(context.Background(), []string{"-env", envPath, "-file", writeCSV(t), "-question", "one"}, Options{
		Stdout:       &stdout,
		NewGenerator: factory(generator),
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "showing 1 of 3 rows") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunDemoDataset(t *testing.T) {
	generator := &scriptedGenerator{responses: []string{"output_df = df.groupby('device')['event_id'].count()"}}
	var stdout, stderr bytes.Buffer

	code := Run(context.Background(), []string{"-demo", "30", "-question", "events per device"}, Options{
		Stdout:       &stdout,
		Stderr:       &stderr,
		NewGenerator: factory(generator),
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	for _, want := range []string{"occurred_at: datetime64[ns]", "Output DataFrame", "mobile"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout.String())
		}
	}
}
