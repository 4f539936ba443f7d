package duckdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/askframe/askframe/internal/table"
)

// Export writes tbl to path in column order. A .parquet or .pq extension
// selects Parquet; anything else is written as CSV with a header row.
func Export(ctx context.Context, tbl *table.Table, path string) error {
	if tbl == nil || tbl.NumColumns() == 0 {
		return fmt.Errorf("table has no columns")
	}
	workDir, err := os.MkdirTemp("", "askframe-export-")
	if err != nil {
		return fmt.Errorf("create export temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	staged := filepath.Join(workDir, "export.parquet")
	if err := writeParquet(staged, tbl); err != nil {
		return fmt.Errorf("stage export: %w", err)
	}

	db, err := Open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	format := "FORMAT CSV, HEADER true"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		format = "FORMAT PARQUET"
	}
	copySQL := fmt.Sprintf("COPY (SELECT %s FROM read_parquet(%s)) TO %s (%s)",
		quoteIdentList(tbl.ColumnNames()), QuoteString(staged), QuoteString(path), format)
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("export %q: %w", path, err)
	}
	return nil
}
