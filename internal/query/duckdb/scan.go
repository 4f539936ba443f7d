package duckdb

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/askframe/askframe/internal/table"
)

// ScanTable drains rows into a table, mapping DuckDB column types onto table types.
func ScanTable(rows *sql.Rows) (*table.Table, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("query column types: %w", err)
	}

	columns := make([]table.Column, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = table.Column{
			Name:   columnType.Name(),
			Type:   MapType(columnType.DatabaseTypeName()),
			Values: make([]any, 0),
		}
	}

	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			columns[i].Values = append(columns[i].Values, normalizeValue(columns[i].Type, value))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return &table.Table{Columns: columns}, nil
}

// MapType translates a DuckDB type name (as reported by database/sql) to a table type.
func MapType(databaseType string) table.Type {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	switch {
	case name == "BOOLEAN" || name == "BOOL":
		return table.TypeBool
	case strings.HasPrefix(name, "DECIMAL"), name == "DOUBLE", name == "FLOAT", name == "REAL":
		return table.TypeFloat
	case strings.HasPrefix(name, "TIMESTAMP"), name == "DATE":
		return table.TypeTime
	case name == "INTERVAL":
		return table.TypeString
	case strings.HasSuffix(name, "INT"), strings.HasSuffix(name, "INTEGER"):
		return table.TypeInt
	default:
		return table.TypeString
	}
}

func normalizeValue(columnType table.Type, value any) any {
	if value == nil {
		return nil
	}
	var normalized any
	switch typed := value.(type) {
	case int64, float64, bool, string, time.Time:
		normalized = typed
	case int8:
		normalized = int64(typed)
	case int16:
		normalized = int64(typed)
	case int32:
		normalized = int64(typed)
	case int:
		normalized = int64(typed)
	case uint8:
		normalized = int64(typed)
	case uint16:
		normalized = int64(typed)
	case uint32:
		normalized = int64(typed)
	case uint64:
		normalized = int64(typed)
	case float32:
		normalized = float64(typed)
	case *big.Int:
		normalized = typed.Int64()
	case []byte:
		normalized = string(typed)
	case interface{ Float64() float64 }:
		normalized = typed.Float64()
	default:
		normalized = fmt.Sprint(typed)
	}
	return coerce(columnType, normalized)
}

func coerce(columnType table.Type, value any) any {
	switch columnType {
	case table.TypeFloat:
		if v, ok := value.(int64); ok {
			return float64(v)
		}
	case table.TypeString:
		if _, ok := value.(string); !ok {
			return table.FormatValue(value)
		}
	}
	return value
}
