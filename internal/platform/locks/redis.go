package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "tienda:lease:"
	defaultTTL    = 30 * time.Second
)

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisLocker hands out short-lived leases backed by SET NX PX.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	prefix string
}

// NewRedisLocker wraps client. A non-positive ttl uses the default.
func NewRedisLocker(client redisClient, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: client is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: defaultPrefix}, nil
}

// TryLock acquires the lease for key. ok is false when another holder owns it.
// The returned unlock is safe to call after expiry.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context), bool, error) {
	token := ulid.Make().String()
	redisKey := l.prefix + key
	acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis locker: acquire %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}
	unlock := func(ctx context.Context) {
		_ = l.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{redisKey}, token).Err()
	}
	return unlock, true, nil
}

// Ping checks connectivity for readiness probes.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
