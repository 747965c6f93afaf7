package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

func TestMemoryFIFO(t *testing.T) {
	q := NewMemory(4)
	defer q.Close()

	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("expected depth 2, got %d", depth)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got != first {
		t.Errorf("expected %s first, got %s", first, got)
	}
	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got != second {
		t.Errorf("expected %s second, got %s", second, got)
	}
}

func TestMemoryEnqueueFullDoesNotBlock(t *testing.T) {
	q := NewMemory(1)
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, uuid.New()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, uuid.New()); err == nil {
		t.Error("expected error when queue is full")
	}
}

func TestMemoryDequeueCancellation(t *testing.T) {
	q := NewMemory(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Error("expected context error on empty queue")
	}
}

func TestRedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	q, err := NewRedis(&config.QueueConfig{Addr: mr.Addr(), Key: "test:qa:queue"})
	if err != nil {
		t.Fatalf("failed to create redis queue: %v", err)
	}
	defer q.Close()

	ctx := context.Background()
	id := uuid.New()

	if err := q.Enqueue(ctx, id); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 1 {
		t.Errorf("expected depth 1, got %d", depth)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}
}

func TestRedisDequeueSkipsMalformedEntries(t *testing.T) {
	mr := miniredis.RunT(t)

	q, err := NewRedis(&config.QueueConfig{Addr: mr.Addr(), Key: "test:qa:queue"})
	if err != nil {
		t.Fatalf("failed to create redis queue: %v", err)
	}
	defer q.Close()

	ctx := context.Background()
	id := uuid.New()
	mr.Lpush("test:qa:queue", "not-a-uuid")
	mr.Lpush("test:qa:queue", id.String())

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Queue.Backend = "kafka"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewDefaultsToMemory(t *testing.T) {
	cfg := &config.Config{}
	q, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create default queue: %v", err)
	}
	defer q.Close()
	if _, ok := q.(*Memory); !ok {
		t.Errorf("expected memory backend, got %T", q)
	}
}
