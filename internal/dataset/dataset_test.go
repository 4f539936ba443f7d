package dataset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askframe/askframe/internal/storage"
	"github.com/askframe/askframe/internal/table"
)

const salesCSV = "region,sales,units,active\nnorth,10.5,1,true\nsouth,20,2,false\nnorth,30.25,3,true\n"

func TestLoadReaderInfersColumnTypes(t *testing.T) {
	tbl, err := NewLoader(0).LoadReader(context.Background(), "sales.csv", strings.NewReader(salesCSV))
	if err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}
	want := table.Schema{
		{Name: "region", Type: table.TypeString},
		{Name: "sales", Type: table.TypeFloat},
		{Name: "units", Type: table.TypeInt},
		{Name: "active", Type: table.TypeBool},
	}
	got := table.Describe(tbl)
	if len(got) != len(want) {
		t.Fatalf("schema = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("schema[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if tbl.Columns[2].Values[2] != int64(3) {
		t.Fatalf("units[2] = %#v", tbl.Columns[2].Values[2])
	}
}

func TestLoadReaderHeaderOnlyCSV(t *testing.T) {
	tbl, err := NewLoader(0).LoadReader(context.Background(), "empty.csv", strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	if tbl.NumRows() != 0 || tbl.NumColumns() != 2 {
		t.Fatalf("shape = %dx%d", tbl.NumRows(), tbl.NumColumns())
	}
}

func TestLoadReaderEnforcesSizeLimit(t *testing.T) {
	_, err := NewLoader(8).LoadReader(context.Background(), "sales.csv", strings.NewReader(salesCSV))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("LoadReader() error = %v, want ErrTooLarge", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(salesCSV), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	tbl, err := NewLoader(1 << 20).LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if tbl.NumColumns() != 4 {
		t.Fatalf("columns = %v", tbl.ColumnNames())
	}
}

func TestLoadObject(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{"team/sales.csv": []byte(salesCSV)}}
	tbl, err := NewLoader(0).LoadObject(context.Background(), store, "team/sales.csv")
	if err != nil {
		t.Fatalf("LoadObject() error = %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}

	if _, err := NewLoader(0).LoadObject(context.Background(), store, "missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("LoadObject(missing) error = %v", err)
	}
	if _, err := NewLoader(0).LoadObject(context.Background(), nil, "team/sales.csv"); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestLoadObjectEnforcesSizeLimit(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{"big.csv": []byte(salesCSV)}}

	_, err := NewLoader(int64(len(salesCSV)-1)).LoadObject(context.Background(), store, "big.csv")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("LoadObject() error = %v, want ErrTooLarge", err)
	}
	if store.opened != 1 {
		t.Fatalf("opened = %d", store.opened)
	}
}

func TestFormatFromName(t *testing.T) {
	if FormatFromName("x.PARQUET") != FormatParquet {
		t.Fatal("expected parquet format")
	}
	if FormatFromName("x.tsv") != FormatCSV || FormatFromName("noext") != FormatCSV {
		t.Fatal("expected csv format")
	}
}

type memoryStore struct {
	objects map[string][]byte
	opened  int
}

func (m *memoryStore) Open(_ context.Context, key string) (io.ReadCloser, storage.DatasetObject, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.DatasetObject{}, storage.ErrObjectNotFound
	}
	m.opened++
	return io.NopCloser(bytes.NewReader(body)), storage.DatasetObject{Key: key, Size: int64(len(body))}, nil
}

func (m *memoryStore) List(context.Context, string) ([]storage.DatasetObject, error) {
	return nil, nil
}
