package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock is not held by this holder")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX based mutex shared by every process using the same
// Redis key. The TTL bounds how long a crashed holder blocks the others.
type RedisLock struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	retryEvery time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client:     client,
		key:        key,
		ttl:        ttl,
		retryEvery: 50 * time.Millisecond,
	}
}

// Acquire blocks until the lock is taken or ctx ends and returns the holder
// token needed to release it.
func (l *RedisLock) Acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
}

func (l *RedisLock) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// WithLock runs fn while holding the lock. fn's context is cancelled when the
// TTL runs out so work cannot continue past the lease.
func (l *RedisLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx)
	if err != nil {
		return err
	}

	leaseCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	runErr := fn(leaseCtx)
	relErr := l.Release(context.WithoutCancel(ctx), token)
	return errors.Join(runErr, relErr)
}
