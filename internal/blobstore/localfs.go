package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archivescribe/ytingest/internal/pkg/errs"
)

// LocalFSStore implements Store over a local filesystem directory tree,
// keyed by the same hierarchical keys the GCS backend uses (forward
// slashes become path separators). It exists as the dev/test swap-in spec
// §4.2 allows ("local filesystem, S3-compatible") and reuses the same
// temp-file-in-same-dir-then-rename protocol the Archive Store uses,
// since no S3-compatible client library appears anywhere in the retrieved
// pack (see DESIGN.md).
type LocalFSStore struct {
	root string
}

// NewLocalFSStore constructs a LocalFSStore rooted at root, creating it if
// necessary.
func NewLocalFSStore(root string) (*LocalFSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("blobstore: root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &LocalFSStore{root: root}, nil
}

// path maps a hierarchical key (e.g. "archives/youtube/2024-01/abc.json" or
// "youtube:video:abc") onto a filesystem path under root. Colons are valid
// filename characters on the platforms this store targets, so they are
// preserved literally rather than translated, keeping List's prefix match
// a plain string comparison against the key.
func (s *LocalFSStore) path(key string) string {
	return filepath.Join(s.root, filepath.Clean(string(filepath.Separator)+key))
}

func (s *LocalFSStore) PutBytes(_ context.Context, key string, data []byte) error {
	path := s.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blobstore: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("blobstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("blobstore: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("blobstore: fsync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("blobstore: rename into place %s: %w", key, err)
	}
	return nil
}

func (s *LocalFSStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blobstore: %s: %w", key, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalFSStore) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("blobstore: encode %s: %w", key, err)
	}
	return s.PutBytes(ctx, key, data)
}

func (s *LocalFSStore) GetJSON(ctx context.Context, key string, out interface{}) error {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("blobstore: decode %s: %w", key, err)
	}
	return nil
}

func (s *LocalFSStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("blobstore: stat %s: %w", key, err)
}

func (s *LocalFSStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalFSStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list %s: %w", prefix, err)
	}
	return keys, nil
}

var _ Store = (*LocalFSStore)(nil)
