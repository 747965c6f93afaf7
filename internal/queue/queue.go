// Package queue provides the FIFO work queue feeding the QA worker. Producers
// enqueue module IDs after registration; consumers block on Dequeue. Backends
// register themselves in init() and are selected by configuration, mirroring
// how storage backends are wired.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

// Queue is a FIFO of module IDs awaiting quality analysis.
type Queue interface {
	// Enqueue adds a module ID to the tail of the queue. It must not block
	// the caller; a full or unreachable queue returns an error.
	Enqueue(ctx context.Context, moduleID uuid.UUID) error

	// Dequeue blocks until an ID is available or ctx is cancelled.
	Dequeue(ctx context.Context) (uuid.UUID, error)

	// Depth reports the number of queued IDs, for metrics.
	Depth(ctx context.Context) (int64, error)

	// Close releases backend resources.
	Close() error
}

// FactoryFunc creates a queue backend from configuration.
type FactoryFunc func(cfg *config.Config) (Queue, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend available under the given name. Called from
// backend init() functions.
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// New creates the queue backend selected by cfg.Queue.Backend.
func New(cfg *config.Config) (Queue, error) {
	backend := cfg.Queue.Backend
	if backend == "" {
		backend = "memory"
	}

	factory, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("unknown queue backend: %s", backend)
	}
	return factory(cfg)
}
