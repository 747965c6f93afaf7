// factory.go implements the storage backend registry and factory, mapping
// backend type strings (local, s3, gcs, azure) to constructor functions.
package storage

import (
	"fmt"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

// FactoryFunc constructs a storage backend from application configuration.
type FactoryFunc func(*config.Config) (Store, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStore creates the storage backend selected by configuration.
func NewStore(cfg *config.Config) (Store, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 's3', 'gcs', or 'azure')", cfg.Storage.DefaultBackend)
	}

	return factory(cfg)
}
