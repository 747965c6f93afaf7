package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

const defaultBufferSize = 1024

func init() {
	Register("memory", func(cfg *config.Config) (Queue, error) {
		return NewMemory(cfg.Queue.BufferSize), nil
	})
}

// Memory is a single-process queue backed by a buffered channel. Suitable for
// development and single-instance deployments; queued IDs are lost on restart,
// which the stuck-run reclaimer compensates for by rescanning pending modules.
type Memory struct {
	ch chan uuid.UUID
}

// NewMemory creates an in-process queue bounded at size (or a default when
// size is not positive).
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Memory{ch: make(chan uuid.UUID, size)}
}

// Enqueue adds a module ID without blocking. A full buffer is an error so the
// registration request can still succeed; the reclaimer re-enqueues later.
func (m *Memory) Enqueue(_ context.Context, moduleID uuid.UUID) error {
	select {
	case m.ch <- moduleID:
		return nil
	default:
		return fmt.Errorf("queue is full (capacity %d)", cap(m.ch))
	}
}

// Dequeue blocks until an ID is available or ctx is cancelled.
func (m *Memory) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case id := <-m.ch:
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Depth reports the number of buffered IDs.
func (m *Memory) Depth(_ context.Context) (int64, error) {
	return int64(len(m.ch)), nil
}

// Close is a no-op for the in-process backend.
func (m *Memory) Close() error {
	return nil
}
