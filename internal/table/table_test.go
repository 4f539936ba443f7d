package table

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDescribeOneEntryPerColumnInOrder(t *testing.T) {
	tbl, err := New(
		Column{Name: "city", Type: TypeString, Values: []any{"a", "b"}},
		Column{Name: "temp", Type: TypeFloat, Values: []any{1.5, 2.5}},
		Column{Name: "year", Type: TypeInt, Values: []any{int64(2020), int64(2021)}},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	schema := Describe(tbl)
	if len(schema) != 3 {
		t.Fatalf("len(schema) = %d", len(schema))
	}
	want := []string{"city: object", "temp: float64", "year: int64"}
	for i, line := range schema.Lines() {
		if line != want[i] {
			t.Fatalf("line %d = %q, want %q", i, line, want[i])
		}
	}
}

func TestDescribeEmptyTable(t *testing.T) {
	if got := Describe(&Table{}); len(got) != 0 {
		t.Fatalf("Describe(empty) = %v", got)
	}
	if got := Describe(nil); len(got) != 0 {
		t.Fatalf("Describe(nil) = %v", got)
	}
}

func TestNewRejectsRaggedAndDuplicateColumns(t *testing.T) {
	if _, err := New(
		Column{Name: "a", Values: []any{int64(1)}},
		Column{Name: "b", Values: []any{}},
	); err == nil {
		t.Fatal("expected ragged column error")
	}
	if _, err := New(Column{Name: "a"}, Column{Name: "a"}); err == nil {
		t.Fatal("expected duplicate column error")
	}
}

func TestCloneDoesNotShareValues(t *testing.T) {
	original := &Table{Columns: []Column{{Name: "x", Type: TypeInt, Values: []any{int64(1), int64(2)}}}}
	clone := original.Clone()
	clone.Columns[0].Values[0] = int64(99)
	clone.Columns[0].Name = "renamed"

	if original.Columns[0].Values[0] != int64(1) {
		t.Fatalf("original value = %v", original.Columns[0].Values[0])
	}
	if original.Columns[0].Name != "x" {
		t.Fatalf("original name = %q", original.Columns[0].Name)
	}
}

func TestColumnLookup(t *testing.T) {
	tbl := &Table{Columns: []Column{{Name: "x", Type: TypeInt, Values: []any{int64(1)}}}}
	if _, err := tbl.Column("missing"); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("Column(missing) error = %v", err)
	}
	column, err := tbl.Column("x")
	if err != nil || column.Name != "x" {
		t.Fatalf("Column(x) = %v, %v", column, err)
	}
}

func TestHeadTailSliceClamp(t *testing.T) {
	tbl := &Table{Columns: []Column{{Name: "x", Type: TypeInt, Values: []any{int64(1), int64(2), int64(3)}}}}
	if got := tbl.Head(10).NumRows(); got != 3 {
		t.Fatalf("Head(10) rows = %d", got)
	}
	tail := tbl.Tail(2)
	if tail.NumRows() != 2 || tail.Columns[0].Values[0] != int64(2) {
		t.Fatalf("Tail(2) = %v", tail.Columns[0].Values)
	}
	if got := tbl.Slice(2, 1).NumRows(); got != 0 {
		t.Fatalf("Slice(2,1) rows = %d", got)
	}
}

func TestInferType(t *testing.T) {
	cases := []struct {
		values []any
		want   Type
	}{
		{[]any{int64(1), nil}, TypeInt},
		{[]any{int64(1), 2.5}, TypeFloat},
		{[]any{true}, TypeBool},
		{[]any{"a", int64(1)}, TypeString},
		{[]any{time.Now()}, TypeTime},
		{[]any{nil}, TypeFloat},
	}
	for _, tc := range cases {
		if got := InferType(tc.values); got != tc.want {
			t.Fatalf("InferType(%v) = %q, want %q", tc.values, got, tc.want)
		}
	}
}

func TestStringRendersIndexAndHeader(t *testing.T) {
	tbl := &Table{Columns: []Column{
		{Name: "name", Type: TypeString, Values: []any{"ann", "bo"}},
		{Name: "score", Type: TypeFloat, Values: []any{3.0, nil}},
	}}
	out := tbl.String()
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", out)
	}
	if !strings.Contains(lines[0], "name") || !strings.Contains(lines[0], "score") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "3.0") || !strings.Contains(lines[2], "NaN") {
		t.Fatalf("body = %q", out)
	}
}
