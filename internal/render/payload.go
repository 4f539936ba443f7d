package render

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/askframe/askframe/internal/table"
)

type PayloadColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Payload is the JSON form of an Output.
type Payload struct {
	Kind      Kind            `json:"kind"`
	Title     string          `json:"title"`
	Text      string          `json:"text,omitempty"`
	Columns   []PayloadColumn `json:"columns,omitempty"`
	Rows      [][]any         `json:"rows,omitempty"`
	TotalRows int             `json:"total_rows,omitempty"`
	Value     any             `json:"value,omitempty"`
	ImagePNG  string          `json:"image_png,omitempty"`
}

func Payloads(report Report) []Payload {
	payloads := make([]Payload, 0, len(report.Outputs))
	for _, output := range report.Outputs {
		payload := Payload{Kind: output.Kind, Title: output.Title, Text: output.Text}
		switch output.Kind {
		case KindTable:
			payload.Columns, payload.Rows = TableJSON(output.Table)
			payload.TotalRows = output.TotalRows
		case KindValue:
			payload.Value = jsonValue(output.Value)
		case KindFigure:
			payload.ImagePNG = base64.StdEncoding.EncodeToString(output.Figure)
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

// TableJSON converts a table to column descriptors and JSON-safe rows.
func TableJSON(tbl *table.Table) ([]PayloadColumn, [][]any) {
	if tbl == nil {
		return nil, nil
	}
	columns := make([]PayloadColumn, len(tbl.Columns))
	for i, column := range tbl.Columns {
		columns[i] = PayloadColumn{Name: column.Name, Type: string(column.Type)}
	}
	rows := make([][]any, tbl.NumRows())
	for r := range rows {
		row := tbl.Row(r)
		for c, cell := range row {
			row[c] = jsonValue(cell)
		}
		rows[r] = row
	}
	return columns, rows
}

// jsonValue replaces values encoding/json rejects: NaN and infinities become
// null, times become RFC 3339 strings.
func jsonValue(value any) any {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = jsonValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = jsonValue(item)
		}
		return out
	case *table.Table:
		columns, rows := TableJSON(v)
		return map[string]any{"columns": columns, "rows": rows}
	default:
		return v
	}
}
