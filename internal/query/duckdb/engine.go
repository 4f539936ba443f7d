package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askframe/askframe/internal/query"
)

type Engine struct {
	TempDir string
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if !IsReadOnlySQL(sqlText) {
		return query.Result{}, fmt.Errorf("only read-only SELECT/WITH queries are allowed")
	}
	if HasMultipleStatements(sqlText) {
		return query.Result{}, fmt.Errorf("only a single statement is allowed")
	}
	if len(request.Tables) == 0 {
		return query.Result{}, fmt.Errorf("no tables available for query")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp(e.TempDir, "askframe-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	db, err := Open()
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = db.Close() }()

	// Settings below are global to the instance, so pin one connection for
	// loading, locking and querying.
	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	scannedRows := 0
	index := 0
	for tableName, tbl := range request.Tables {
		if tbl.NumColumns() == 0 {
			return query.Result{}, fmt.Errorf("table %q has no columns", tableName)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tableName), index))
		index++
		if err := writeParquet(localPath, tbl); err != nil {
			return query.Result{}, fmt.Errorf("write local parquet file for table %q: %w", tableName, err)
		}
		loadSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT %s FROM read_parquet(%s)`,
			QuoteIdent(tableName), quoteIdentList(tbl.ColumnNames()), QuoteString(localPath))
		if _, err := conn.ExecContext(ctx, loadSQL); err != nil {
			return query.Result{}, fmt.Errorf("load table %q: %w", tableName, err)
		}
		scannedRows += tbl.NumRows()
	}

	// Tables are materialised, so the query itself never needs the filesystem.
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return query.Result{}, fmt.Errorf("restrict duckdb: %w", err)
		}
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s\n) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := ScanTable(rows)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Table:       result,
		ScannedRows: scannedRows,
		Duration:    time.Since(start),
	}, nil
}

// Open starts a private in-memory DuckDB instance.
func Open() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// IsReadOnlySQL accepts statements starting with SELECT or WITH.
func IsReadOnlySQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

// HasMultipleStatements reports whether a semicolon outside string literals,
// quoted identifiers and comments separates two statements.
func HasMultipleStatements(sqlText string) bool {
	text := stripTrailingSemicolons(sqlText)
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\'' || c == '"':
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				return false
			}
			i += end + 1
		case c == '-' && strings.HasPrefix(text[i:], "--"):
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				return false
			}
			i += end
		case c == '/' && strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		case c == ';':
			return true
		}
	}
	return false
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func quoteIdentList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, QuoteIdent(value))
	}
	return strings.Join(quoted, ", ")
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
