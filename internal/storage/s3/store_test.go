package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/askframe/askframe/internal/storage"
)

func newTestStore(t *testing.T, prefix string, fake *fakeClient) *Store {
	t.Helper()
	store, err := newStore(Config{Bucket: "datasets", Prefix: prefix}, fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	return store
}

func TestOpenResolvesKeyBelowPrefix(t *testing.T) {
	fake := &fakeClient{objects: map[string]string{"askframe/team/sales.csv": "region,sales\n"}}
	store := newTestStore(t, "/askframe/", fake)

	reader, object, err := store.Open(context.Background(), "/team/sales.csv")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	body, _ := io.ReadAll(reader)

	if fake.lastBucket != "datasets" || fake.lastKey != "askframe/team/sales.csv" {
		t.Fatalf("bucket/key = %q/%q", fake.lastBucket, fake.lastKey)
	}
	if object.Key != "team/sales.csv" || object.Size != int64(len(body)) {
		t.Fatalf("object = %#v", object)
	}
}

func TestOpenRejectsInvalidKeys(t *testing.T) {
	fake := &fakeClient{}
	store := newTestStore(t, "", fake)

	for _, key := range []string{"", "  ", "../secrets.csv", "team/../../x.csv"} {
		if _, _, err := store.Open(context.Background(), key); err == nil {
			t.Fatalf("Open(%q) expected error", key)
		}
	}
	if _, _, err := store.Open(context.Background(), "notes/readme.md"); !errors.Is(err, storage.ErrNotDataset) {
		t.Fatalf("Open(readme) error = %v, want ErrNotDataset", err)
	}
	if fake.opens != 0 {
		t.Fatalf("invalid keys reached the bucket %d times", fake.opens)
	}
}

func TestOpenMapsMissingObject(t *testing.T) {
	store := newTestStore(t, "", &fakeClient{})

	_, _, err := store.Open(context.Background(), "missing.parquet")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Open() error = %v", err)
	}
	if !strings.Contains(err.Error(), "missing.parquet") {
		t.Fatalf("error lacks key: %v", err)
	}
}

func TestListReturnsSortedDatasetsRelativeToPrefix(t *testing.T) {
	fake := &fakeClient{objects: map[string]string{
		"askframe/team/sales.parquet": "x",
		"askframe/team/events.csv":    "x",
		"askframe/team/notes.md":      "x",
		"askframe/other/users.tsv":    "x",
	}}
	store := newTestStore(t, "askframe", fake)

	datasets, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var keys []string
	for _, object := range datasets {
		keys = append(keys, object.Key)
	}
	if strings.Join(keys, ",") != "other/users.tsv,team/events.csv,team/sales.parquet" {
		t.Fatalf("keys = %v", keys)
	}
	if fake.lastPrefix != "askframe/" || fake.lastLimit != DefaultListLimit {
		t.Fatalf("prefix/limit = %q/%d", fake.lastPrefix, fake.lastLimit)
	}

	datasets, err = store.List(context.Background(), "team/")
	if err != nil {
		t.Fatalf("List(team/) error = %v", err)
	}
	if len(datasets) != 2 || fake.lastPrefix != "askframe/team/" {
		t.Fatalf("datasets = %v prefix = %q", datasets, fake.lastPrefix)
	}
	if _, err := store.List(context.Background(), "../"); err == nil {
		t.Fatal("expected invalid prefix error")
	}
}

func TestHealthCheckRequiresBucket(t *testing.T) {
	if err := newTestStore(t, "", &fakeClient{bucketExists: false}).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	if err := newTestStore(t, "", &fakeClient{bucketExists: true}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Bucket: "datasets"}); err == nil {
		t.Fatal("expected endpoint error")
	}
	if _, err := newStore(Config{Bucket: " "}, &fakeClient{}); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		useSSL   bool
		endpoint string
		secure   bool
		wantErr  bool
	}{
		{raw: "https://minio.example.com", endpoint: "minio.example.com", secure: true},
		{raw: "http://localhost:9000", useSSL: true, endpoint: "localhost:9000", secure: true},
		{raw: "localhost:9000", endpoint: "localhost:9000"},
		{raw: "ftp://minio", wantErr: true},
		{raw: "https://", wantErr: true},
	}
	for _, tc := range cases {
		endpoint, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil || endpoint != tc.endpoint || secure != tc.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v/%v", tc.raw, endpoint, secure, err)
		}
	}
}

type fakeClient struct {
	objects      map[string]string
	bucketExists bool
	opens        int
	lastBucket   string
	lastKey      string
	lastPrefix   string
	lastLimit    int
}

func (f *fakeClient) Open(_ context.Context, bucket, key string) (io.ReadCloser, storage.DatasetObject, error) {
	f.opens++
	f.lastBucket = bucket
	f.lastKey = key
	body, ok := f.objects[key]
	if !ok {
		return nil, storage.DatasetObject{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), storage.DatasetObject{Key: key, Size: int64(len(body)), LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) List(_ context.Context, _, prefix string, limit int) ([]storage.DatasetObject, error) {
	f.lastPrefix = prefix
	f.lastLimit = limit
	objects := make([]storage.DatasetObject, 0)
	for key, body := range f.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, storage.DatasetObject{Key: key, Size: int64(len(body))})
		}
	}
	return objects, nil
}

func (f *fakeClient) BucketExists(context.Context, string) (bool, error) {
	return f.bucketExists, nil
}
