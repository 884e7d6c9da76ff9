package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the subset of redis.Cmdable used by RedisStore.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisStore keeps counters as plain Redis integers. INCR and EXPIRE NX go
// out together in one MULTI/EXEC round trip, so the TTL is attached once.
type RedisStore struct {
	rdb redisAPI
}

func NewRedisStore(rdb redisAPI) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("ratelimit: redis client must not be nil")
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) key(subject string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", subject, windowStart.Unix())
}

func (s *RedisStore) Count(ctx context.Context, subject string, windowStart time.Time) (int, error) {
	raw, err := s.rdb.Get(ctx, s.key(subject, windowStart)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis counter %q: %w", raw, err)
	}
	return n, nil
}

func (s *RedisStore) Increment(ctx context.Context, subject string, windowStart time.Time, ttl time.Duration) (int, error) {
	key := s.key(subject, windowStart)
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	n := 0
	if incr != nil {
		n = int(incr.Val())
	}
	if err != nil {
		return n, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	return n, nil
}
