package table

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FormatValue renders a cell the way it is shown to users.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NaN"
	case float64:
		return FormatFloat(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case string:
		return typed
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format("2006-01-02")
		}
		return typed.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

func FormatFloat(value float64) string {
	switch {
	case math.IsNaN(value):
		return "NaN"
	case math.IsInf(value, 1):
		return "inf"
	case math.IsInf(value, -1):
		return "-inf"
	case value == math.Trunc(value) && math.Abs(value) < 1e15:
		return strconv.FormatFloat(value, 'f', 1, 64)
	default:
		return strconv.FormatFloat(value, 'g', 10, 64)
	}
}

// String renders the table as right-aligned text with a positional index,
// matching how a dataframe prints in a console.
func (t *Table) String() string {
	if t.NumColumns() == 0 {
		return "Empty DataFrame"
	}
	rows := t.NumRows()
	header := make([]string, len(t.Columns)+1)
	widths := make([]int, len(t.Columns)+1)
	widths[0] = len(strconv.Itoa(rows))
	for c, column := range t.Columns {
		header[c+1] = column.Name
		widths[c+1] = utf8.RuneCountInString(column.Name)
	}
	cells := make([][]string, rows)
	for r := 0; r < rows; r++ {
		cells[r] = make([]string, len(t.Columns)+1)
		cells[r][0] = strconv.Itoa(r)
		for c, column := range t.Columns {
			cell := FormatValue(column.Values[r])
			cells[r][c+1] = cell
			if n := utf8.RuneCountInString(cell); n > widths[c+1] {
				widths[c+1] = n
			}
		}
	}

	var b strings.Builder
	writeRow(&b, header, widths)
	for _, row := range cells {
		b.WriteByte('\n')
		writeRow(&b, row, widths)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
		b.WriteString(cell)
	}
}
