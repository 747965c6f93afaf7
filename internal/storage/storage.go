// Package storage defines the Store interface and common types for all module
// package storage backends.
//
// Permanent module storage is keyed by module slug: one prefix per module
// containing every archived version (e.g. modules/<slug>/<version>.tar.gz).
// DeletePrefix exists so an entire module can be evicted in one call.
//
// New backends are added by implementing the Store interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Store, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init(),
// so adding a backend requires no factory changes.
package storage

import (
	"context"
	"io"
	"time"
)

// Store is the interface all storage backends implement.
type Store interface {
	// Put stores an object under key and returns its size and checksum.
	Put(ctx context.Context, key string, reader io.Reader) (*ObjectInfo, error)

	// Get retrieves an object. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a single object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under the given key prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Stat returns object metadata without retrieving the content.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Key is the storage key of the object.
	Key string

	// Size is the object size in bytes.
	Size int64

	// Checksum is the SHA256 hash of the object contents.
	Checksum string

	// LastModified is when the object was last written. Zero for backends
	// that do not track it on Put.
	LastModified time.Time
}
