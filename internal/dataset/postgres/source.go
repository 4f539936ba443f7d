package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askframe/askframe/internal/table"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres source: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres source: %w", err)
	}

	return db, nil
}

// Source snapshots the result of a read-only query into a table.
type Source struct {
	DB      *sql.DB
	MaxRows int
}

func NewSource(db *sql.DB, maxRows int) *Source {
	return &Source{DB: db, MaxRows: maxRows}
}

func (s *Source) Load(ctx context.Context, query string) (*table.Table, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(normalized, "select") && !strings.HasPrefix(normalized, "with") {
		return nil, fmt.Errorf("only read-only SELECT/WITH queries are allowed")
	}

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query postgres source: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

	count := 0
	for rows.Next() {
		if s.MaxRows > 0 && count >= s.MaxRows {
			return nil, fmt.Errorf("query returned more than %d rows", s.MaxRows)
		}
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			converted, err := convert(columns[i].Type, value)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", columns[i].Name, err)
			}
			columns[i].Values = append(columns[i].Values, converted)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return &table.Table{Columns: columns}, nil
}

func MapType(databaseType string) table.Type {
	switch strings.ToUpper(databaseType) {
	case "INT2", "INT4", "INT8":
		return table.TypeInt
	case "FLOAT4", "FLOAT8", "NUMERIC":
		return table.TypeFloat
	case "BOOL":
		return table.TypeBool
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return table.TypeTime
	default:
		return table.TypeString
	}
}

// convert maps database/sql driver values onto the column's table type.
func convert(columnType table.Type, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}
	switch columnType {
	case table.TypeInt:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case table.TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case table.TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case table.TypeTime:
		if v, ok := value.(time.Time); ok {
			return v, nil
		}
	default:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return table.FormatValue(value), nil
	}
	return nil, fmt.Errorf("unexpected %T value for %s column", value, columnType)
}
