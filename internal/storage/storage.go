package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrNotDataset     = errors.New("object is not a dataset file")
)

// DatasetExtensions are the object suffixes the loader can read.
var DatasetExtensions = []string{".csv", ".tsv", ".txt", ".parquet", ".pq"}

// DatasetObject describes one dataset file. Key is relative to the store's
// prefix, so it can be passed back to Open unchanged.
type DatasetObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the read side of a bucket holding datasets.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, DatasetObject, error)
	List(ctx context.Context, prefix string) ([]DatasetObject, error)
}

func IsDatasetKey(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, candidate := range DatasetExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
