// Package blobstore implements the Blob Store Adapter component (spec
// §4.2): an opaque key->bytes/JSON store for large artifacts. The core
// treats absence as "first write"; concurrent writers to the same key are
// forbidden by spec §5 and this package does not attempt to arbitrate them.
package blobstore

import "context"

// Store is the capability set spec §4.2 names: put/get bytes, put/get
// JSON, existence, delete, and prefix listing. Keys are hierarchical
// strings (e.g. "youtube:video:<id>", "backups/<ts>/manifest.json").
type Store interface {
	PutBytes(ctx context.Context, key string, data []byte) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	PutJSON(ctx context.Context, key string, value interface{}) error
	GetJSON(ctx context.Context, key string, out interface{}) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
