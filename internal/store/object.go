package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

const defaultStateObjectKey = "vertex-proxy-state.json"

// ObjectStateStore keeps the state document as one object in an
// S3-compatible bucket.
type ObjectStateStore struct {
	client    *minio.Client
	bucket    string
	objectKey string
}

// NewObjectStateStore connects to the object storage endpoint and
// ensures the bucket exists.
func NewObjectStateStore(ctx context.Context, cfg config.ObjectStoreConfig) (*ObjectStateStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	objectKey := strings.Trim(cfg.ObjectKey, "/")
	if objectKey == "" {
		objectKey = defaultStateObjectKey
	}

	lookup := minio.BucketLookupDNS
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure:       cfg.UseSSL,
		Region:       strings.TrimSpace(cfg.Region),
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("object store: check bucket: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("object store: create bucket: %w", err)
		}
	}

	return &ObjectStateStore{client: client, bucket: bucket, objectKey: objectKey}, nil
}

// Load fetches the state object; a missing key yields nil, nil.
func (s *ObjectStateStore) Load(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("object store: get object: %w", err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("object store: read object: %w", err)
	}
	return data, nil
}

// Save uploads the state object.
func (s *ObjectStateStore) Save(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object store: put object: %w", err)
	}
	return nil
}

// Close is a no-op; the minio client holds no persistent connections.
func (s *ObjectStateStore) Close() error { return nil }
