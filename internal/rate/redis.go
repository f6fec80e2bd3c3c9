package rate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowLua trims, records and counts in one step.
// KEYS[1] = window key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = unique member for this hit
var slidingWindowLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[3])
redis.call('PEXPIRE', KEYS[1], window)
return redis.call('ZCARD', KEYS[1])
`)

// RedisStore keeps one sorted set per key, scored by hit time.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	seq    atomic.Uint64
}

// NewRedisStore returns a Store backed by redisClient. Keys are stored under
// prefix (default "rl").
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	count, err := slidingWindowLua.Run(ctx, s.redis,
		[]string{s.key(key)},
		now.UnixMilli(),
		window.Milliseconds(),
		member(now, s.seq.Add(1)),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
