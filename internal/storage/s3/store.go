package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/askframe/askframe/internal/storage"
)

// DefaultListLimit caps how many datasets a single List call returns.
const DefaultListLimit = 1000

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
	ListLimit       int
}

// bucketClient works on full object keys; Store owns the prefix.
type bucketClient interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, storage.DatasetObject, error)
	List(ctx context.Context, bucket, prefix string, limit int) ([]storage.DatasetObject, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Store serves dataset files from one bucket, optionally below a prefix.
type Store struct {
	client    bucketClient
	bucket    string
	prefix    string
	listLimit int
}

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return newStore(cfg, mc)
}

func newStore(cfg Config, c bucketClient) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	limit := cfg.ListLimit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Store{client: c, bucket: bucket, prefix: cleanPrefix(cfg.Prefix), listLimit: limit}, nil
}

// Open streams a dataset object. Keys must name a dataset file; anything else
// fails with storage.ErrNotDataset before the bucket is contacted.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, storage.DatasetObject, error) {
	relative, err := cleanKey(key)
	if err != nil {
		return nil, storage.DatasetObject{}, err
	}
	if !storage.IsDatasetKey(relative) {
		return nil, storage.DatasetObject{}, fmt.Errorf("%w: %q", storage.ErrNotDataset, key)
	}
	reader, object, err := s.client.Open(ctx, s.bucket, s.absolute(relative))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.DatasetObject{}, fmt.Errorf("dataset %q: %w", relative, storage.ErrObjectNotFound)
		}
		return nil, storage.DatasetObject{}, fmt.Errorf("open dataset %q: %w", relative, err)
	}
	object.Key = relative
	return reader, object, nil
}

// List returns dataset files under prefix, sorted by key, with keys relative
// to the store prefix. Non-dataset objects are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.DatasetObject, error) {
	listPrefix := s.prefix
	if trimmed := strings.TrimSpace(strings.TrimPrefix(prefix, "/")); trimmed != "" {
		relative, err := cleanKey(trimmed)
		if err != nil {
			return nil, err
		}
		listPrefix = s.absolute(relative)
		if strings.HasSuffix(trimmed, "/") {
			listPrefix += "/"
		}
	} else if listPrefix != "" {
		listPrefix += "/"
	}

	objects, err := s.client.List(ctx, s.bucket, listPrefix, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("list datasets in %q: %w", s.bucket, err)
	}
	datasets := make([]storage.DatasetObject, 0, len(objects))
	for _, object := range objects {
		if !storage.IsDatasetKey(object.Key) {
			continue
		}
		object.Key = s.relative(object.Key)
		datasets = append(datasets, object)
	}
	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Key < datasets[j].Key })
	return datasets, nil
}

// HealthCheck fails when the configured bucket is unreachable or missing.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *Store) absolute(relative string) string {
	if s.prefix == "" {
		return relative
	}
	return s.prefix + "/" + relative
}

func (s *Store) relative(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("dataset key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid dataset key: %q", key)
	}
	return cleaned, nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if prefix = path.Clean(prefix); prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

// parseEndpoint accepts either host[:port] or a URL; an https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	switch {
	case parsed.Host == "":
		return "", false, fmt.Errorf("endpoint host is required")
	case parsed.Scheme == "https":
		return parsed.Host, true, nil
	case parsed.Scheme == "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}
}

type minioClient struct {
	client *minio.Client
}

// Open issues a GET and forces the first response so a missing key surfaces
// here instead of on the first Read.
func (m *minioClient) Open(ctx context.Context, bucket, key string) (io.ReadCloser, storage.DatasetObject, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.DatasetObject{}, mapMinioErr(err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, storage.DatasetObject{}, mapMinioErr(err)
	}
	return obj, datasetObject(info), nil
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string, limit int) ([]storage.DatasetObject, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make([]storage.DatasetObject, 0)
	for info := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, mapMinioErr(info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		objects = append(objects, datasetObject(info))
		if len(objects) >= limit {
			break
		}
	}
	return objects, nil
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, mapMinioErr(err)
	}
	return exists, nil
}

func datasetObject(info minio.ObjectInfo) storage.DatasetObject {
	return storage.DatasetObject{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
