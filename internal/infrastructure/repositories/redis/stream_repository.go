package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// RedisStreamRepository stores the whole stream collection as one JSON
// document under a single key, so SaveAll replaces it atomically.
type RedisStreamRepository struct {
	client *redis.Client
	key    string
}

func NewRedisStreamRepository(client *redis.Client, key string) *RedisStreamRepository {
	return &RedisStreamRepository{
		client: client,
		key:    key,
	}
}

func (r *RedisStreamRepository) LoadAll(ctx context.Context) ([]*domain.Stream, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streams from Redis: %w", err)
	}

	var streams []*domain.Stream
	if err := json.Unmarshal(data, &streams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal streams: %w", err)
	}
	return streams, nil
}

func (r *RedisStreamRepository) SaveAll(ctx context.Context, streams []*domain.Stream) error {
	if streams == nil {
		streams = []*domain.Stream{}
	}
	data, err := json.Marshal(streams)
	if err != nil {
		return fmt.Errorf("failed to marshal streams: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set streams in Redis: %w", err)
	}
	return nil
}

var _ ports.StreamStore = (*RedisStreamRepository)(nil)
