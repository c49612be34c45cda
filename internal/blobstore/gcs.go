package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/archivescribe/ytingest/internal/pkg/errs"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// GCSStore implements Store over a single Google Cloud Storage bucket,
// grounded on the teacher's internal/platform/gcp/bucket.go (client
// construction, emulator-aware dialing, UploadFile/DownloadFile/ListKeys
// shape) collapsed from its avatar/material bucket-category split down to
// the single bucket this core needs.
type GCSStore struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

// NewGCSStore constructs a GCSStore against bucket. When emulatorHost is
// non-empty, the client dials the GCS emulator instead of production GCS,
// matching the teacher's ResolveObjectStorageConfigFromEnv pattern for
// local/dev/test runs.
func NewGCSStore(ctx context.Context, bucket, emulatorHost string, log *logger.Logger) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("blobstore: bucket name required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(emulatorHost) != "" {
		opts = append(opts,
			option.WithEndpoint(strings.TrimRight(emulatorHost, "/")+"/storage/v1/"),
			option.WithoutAuthentication(),
		)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create gcs client: %w", err)
	}
	if log == nil {
		log, _ = logger.New("")
	}
	return &GCSStore{client: client, bucket: bucket, log: log.With("client", "GCSStore", "bucket", bucket)}, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *GCSStore) PutBytes(ctx context.Context, key string, data []byte) error {
	w := s.object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("blobstore: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("blobstore: close writer for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) GetBytes(ctx context.Context, key string) ([]byte, error) {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, fmt.Errorf("blobstore: %s: %w", key, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("blobstore: open %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("blobstore: encode %s: %w", key, err)
	}
	return s.PutBytes(ctx, key, data)
}

func (s *GCSStore) GetJSON(ctx context.Context, key string, out interface{}) error {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("blobstore: decode %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if err == storage.ErrObjectNotExist {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blobstore: stat %s: %w", key, err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.object(key).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blobstore: list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

var _ Store = (*GCSStore)(nil)
