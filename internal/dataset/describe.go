package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
)

// describeSelectList casts source columns whose DuckDB types have no table
// counterpart (DECIMAL, UUID, TIME, ...) into ones that scan cleanly.
func describeSelectList(ctx context.Context, db *sql.DB, source string) (string, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+source)
	if err != nil {
		return "", fmt.Errorf("describe dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("describe columns: %w", err)
	}

	expressions := make([]string, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return "", fmt.Errorf("scan describe row: %w", err)
		}
		name := fmt.Sprint(values[0])
		columnType := strings.ToUpper(fmt.Sprint(values[1]))
		expressions = append(expressions, castExpression(name, columnType))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate describe rows: %w", err)
	}
	if len(expressions) == 0 {
		return "*", nil
	}
	return strings.Join(expressions, ", "), nil
}

func castExpression(name, columnType string) string {
	ident := duckdbengine.QuoteIdent(name)
	switch {
	case strings.HasPrefix(columnType, "DECIMAL"):
		return fmt.Sprintf("CAST(%s AS DOUBLE) AS %s", ident, ident)
	case columnType == "HUGEINT" || columnType == "UBIGINT":
		return fmt.Sprintf("CAST(%s AS BIGINT) AS %s", ident, ident)
	case columnType == "UUID" || columnType == "TIME" || columnType == "INTERVAL" || columnType == "BLOB" ||
		strings.HasSuffix(columnType, "[]") || strings.HasPrefix(columnType, "STRUCT") || strings.HasPrefix(columnType, "MAP"):
		return fmt.Sprintf("CAST(%s AS VARCHAR) AS %s", ident, ident)
	default:
		return ident
	}
}
