package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
)

func TestQueryRunsAgainstDuckDB(t *testing.T) {
	result := execute(t, Config{Engine: duckdbengine.NewEngine()},
		`output_df = df.query("SELECT region, SUM(sales) AS total FROM df GROUP BY region ORDER BY region")`, salesTable())

	out := outputTable(t, result)
	if out.NumRows() != 2 || out.Columns[1].Values[0] != 40.0 {
		t.Fatalf("output_df = %s", out)
	}
}

func TestQueryCannotReachHostFiles(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.csv")
	if err := os.WriteFile(secret, []byte("token\nhunter2\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	target := filepath.Join(dir, "written.csv")

	for _, sqlText := range []string{
		fmt.Sprintf("SELECT content FROM read_text('%s')", secret),
		fmt.Sprintf("SELECT * FROM read_csv('%s')", secret),
		fmt.Sprintf("SELECT 1; COPY (SELECT 42 AS a) TO '%s'; SELECT 1", target),
	} {
		code := fmt.Sprintf("output_df = df.query(%q)\n", sqlText)
		_, err := New(Config{Engine: duckdbengine.NewEngine()}).Execute(context.Background(), code, salesTable())

		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("%s: error = %v, want ExecutionError", sqlText, err)
		}
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("generated code wrote %s", target)
	}
}
