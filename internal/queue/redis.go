package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

const defaultQueueKey = "marketplace:qa:queue"

// dequeuePollTimeout bounds each BRPOP so Dequeue can observe ctx
// cancellation between polls.
const dequeuePollTimeout = 5 * time.Second

func init() {
	Register("redis", func(cfg *config.Config) (Queue, error) {
		return NewRedis(&cfg.Queue)
	})
}

// Redis is a shared queue backed by a Redis list. Multiple worker instances
// can consume from it; LPUSH/BRPOP give FIFO ordering.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg *config.QueueConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis queue addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = defaultQueueKey
	}

	return &Redis{client: client, key: key}, nil
}

// Enqueue pushes a module ID onto the head of the list.
func (r *Redis) Enqueue(ctx context.Context, moduleID uuid.UUID) error {
	if err := r.client.LPush(ctx, r.key, moduleID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue module: %w", err)
	}
	return nil
}

// Dequeue pops from the tail, blocking in short intervals so cancellation is
// honored promptly.
func (r *Redis) Dequeue(ctx context.Context) (uuid.UUID, error) {
	for {
		if err := ctx.Err(); err != nil {
			return uuid.Nil, err
		}

		result, err := r.client.BRPop(ctx, dequeuePollTimeout, r.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to dequeue: %w", err)
		}

		// BRPOP returns [key, value].
		id, err := uuid.Parse(result[1])
		if err != nil {
			// A malformed entry is dropped rather than poisoning the queue.
			continue
		}
		return id, nil
	}
}

// Depth reports the list length.
func (r *Redis) Depth(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return n, nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
