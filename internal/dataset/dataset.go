package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
	"github.com/askframe/askframe/internal/storage"
	"github.com/askframe/askframe/internal/table"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

var ErrTooLarge = errors.New("dataset exceeds size limit")

// FormatFromName picks the format by file extension; anything unknown is read as delimited text.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".parquet", ".pq":
		return FormatParquet
	default:
		return FormatCSV
	}
}

type Loader struct {
	MaxBytes int64
	TempDir  string
}

func NewLoader(maxBytes int64) *Loader {
	return &Loader{MaxBytes: maxBytes}
}

func (l *Loader) LoadFile(ctx context.Context, path string) (*table.Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat dataset %q: %w", path, err)
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, info.Size(), l.MaxBytes)
	}
	return readWithDuckDB(ctx, path, FormatFromName(path))
}

// LoadReader spools body to a private temp file and loads it; name only selects the format.
func (l *Loader) LoadReader(ctx context.Context, name string, body io.Reader) (*table.Table, error) {
	workDir, err := os.MkdirTemp(l.TempDir, "askframe-upload-")
	if err != nil {
		return nil, fmt.Errorf("create upload temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	format := FormatFromName(name)
	localPath := filepath.Join(workDir, "upload."+string(format))
	if err := writeFile(localPath, body, l.MaxBytes); err != nil {
		return nil, err
	}
	return readWithDuckDB(ctx, localPath, format)
}

func (l *Loader) LoadObject(ctx context.Context, store storage.ObjectStore, key string) (*table.Table, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is not configured")
	}
	reader, object, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	if l.MaxBytes > 0 && object.Size > l.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, object.Size, l.MaxBytes)
	}
	return l.LoadReader(ctx, object.Key, reader)
}

func readWithDuckDB(ctx context.Context, path string, format Format) (*table.Table, error) {
	db, err := duckdbengine.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	source := fmt.Sprintf("read_csv_auto(%s, header = true)", duckdbengine.QuoteString(path))
	if format == FormatParquet {
		source = fmt.Sprintf("read_parquet(%s)", duckdbengine.QuoteString(path))
	}

	selectList, err := describeSelectList(ctx, db, source)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", selectList, source))
	if err != nil {
		return nil, fmt.Errorf("read %s dataset: %w", format, err)
	}
	defer func() { _ = rows.Close() }()

	tbl, err := duckdbengine.ScanTable(rows)
	if err != nil {
		return nil, err
	}
	if err := tbl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	return tbl, nil
}

func writeFile(path string, reader io.Reader, maxBytes int64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if maxBytes > 0 {
		reader = io.LimitReader(reader, maxBytes+1)
	}
	written, err := io.Copy(file, reader)
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	if maxBytes > 0 && written > maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return nil
}
