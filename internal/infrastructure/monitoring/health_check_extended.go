package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"bintunet/internal/core/ports"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddStoreCheck verifies the stream store can be read.
func (h *HealthChecker) AddStoreCheck(name string, store ports.StreamStore, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) error {
		_, err := store.LoadAll(ctx)
		return err
	}, timeout)
}
