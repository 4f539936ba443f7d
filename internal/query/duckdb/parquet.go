package duckdb

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askframe/askframe/internal/table"
)

// writeParquet materialises tbl as a flat parquet file with one optional leaf per column.
func writeParquet(path string, tbl *table.Table) error {
	group := parquet.Group{}
	for _, column := range tbl.Columns {
		group[column.Name] = parquet.Optional(parquetNode(column.Type))
	}
	schema := parquet.NewSchema("df", group)

	// Group fields are stored sorted by name, so leaf indexes differ from table order.
	leafIndex := make(map[string]int, len(tbl.Columns))
	for i, columnPath := range schema.Columns() {
		leafIndex[columnPath[0]] = i
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewWriter(file, schema)
	rows := make([]parquet.Row, 0, tbl.NumRows())
	for r := 0; r < tbl.NumRows(); r++ {
		row := make(parquet.Row, len(tbl.Columns))
		for _, column := range tbl.Columns {
			index := leafIndex[column.Name]
			value := column.Values[r]
			if value == nil {
				row[index] = parquet.Value{}.Level(0, 0, index)
				continue
			}
			pv, err := parquetValue(column.Type, value)
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", column.Name, r, err)
			}
			row[index] = pv.Level(0, 1, index)
		}
		rows = append(rows, row)
	}
	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func parquetNode(columnType table.Type) parquet.Node {
	switch columnType {
	case table.TypeInt:
		return parquet.Int(64)
	case table.TypeFloat:
		return parquet.Leaf(parquet.DoubleType)
	case table.TypeBool:
		return parquet.Leaf(parquet.BooleanType)
	case table.TypeTime:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

func parquetValue(columnType table.Type, value any) (parquet.Value, error) {
	switch columnType {
	case table.TypeInt:
		switch v := value.(type) {
		case int64:
			return parquet.Int64Value(v), nil
		case float64:
			return parquet.Int64Value(int64(v)), nil
		}
	case table.TypeFloat:
		switch v := value.(type) {
		case float64:
			return parquet.DoubleValue(v), nil
		case int64:
			return parquet.DoubleValue(float64(v)), nil
		}
	case table.TypeBool:
		if v, ok := value.(bool); ok {
			return parquet.BooleanValue(v), nil
		}
	case table.TypeTime:
		if v, ok := value.(time.Time); ok {
			return parquet.Int64Value(v.UnixMicro()), nil
		}
	default:
		return parquet.ByteArrayValue([]byte(table.FormatValue(value))), nil
	}
	return parquet.Value{}, fmt.Errorf("value %v (%T) does not match column type %s", value, value, columnType)
}
