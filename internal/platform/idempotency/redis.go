package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tienda:idem:"

// releaseScript deletes a pending key only when the fingerprint still matches.
const releaseScript = `local v = redis.call("get", KEYS[1])
if v and cjson.decode(v)["fingerprint"] == ARGV[1] then return redis.call("del", KEYS[1]) end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisStore shares keys across API replicas using native key expiry.
type RedisStore struct {
	client redisClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client.
func NewRedisStore(client redisClient) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error) {
	pending, err := json.Marshal(Record{Fingerprint: fingerprint, Status: StatusPending})
	if err != nil {
		return Reservation{}, err
	}
	redisKey := redisKeyPrefix + key
	// A key can expire between SETNX and GET; one retry covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, redisKey, string(pending), ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if ok {
			return Reservation{State: ReservationStateNew}, nil
		}
		raw, err := s.client.Get(ctx, redisKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: load: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Reservation{}, fmt.Errorf("idempotency: decode record: %w", err)
		}
		return reservationFor(rec, fingerprint)
	}
	return Reservation{State: ReservationStatePending}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	data, err := json.Marshal(completedRecord(fingerprint, resp))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, string(data), ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	if err := s.client.Eval(ctx, releaseScript, []string{redisKeyPrefix + key}, fingerprint).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}
