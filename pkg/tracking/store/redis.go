package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementLua increments a windowed counter and sets its TTL in one atomic
// server-side step, returning the new count and the remaining TTL in
// milliseconds. Running both in a single script avoids the classic race where
// a crash between INCR and EXPIRE leaves a counter that never expires.
const incrementLua = `
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

// DefaultCallTimeout bounds each store round-trip. It is deliberately a few
// tens of milliseconds: distinct from, and far below, the overall request
// timeout, so a degraded store degrades decisions instead of hanging them.
const DefaultCallTimeout = 50 * time.Millisecond

// RedisStore is the shared Store implementation, required whenever more than
// one service instance must agree on a quota.
type RedisStore struct {
	client      *redis.Client
	script      *redis.Script
	keyPrefix   string
	callTimeout time.Duration
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix prepended to every counter key
// (default "ganymede:counter:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithCallTimeout sets the per-call timeout applied to every store
// round-trip (default DefaultCallTimeout).
func WithCallTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// NewRedisStore creates a Redis-backed counter store and verifies
// connectivity with a ping.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:      client,
		script:      redis.NewScript(incrementLua),
		keyPrefix:   "ganymede:counter:",
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

// IncrementAndGet runs the atomic increment script. The call carries its own
// timeout on top of any deadline already on ctx; deadline and connectivity
// failures are reported as ErrUnavailable so callers can apply their
// fallback policy.
func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	res, err := s.script.Run(callCtx, s.client, []string{s.keyPrefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return parseIncrementReply(res, window)
}

// parseIncrementReply decodes the [count, pttl] pair the increment script
// returns. A malformed reply is an error, never a zero count: a zero count
// would read as "well under limit" and silently admit.
func parseIncrementReply(res interface{}, window time.Duration) (int64, time.Duration, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected script response: %v", res)
	}

	count, countOK := values[0].(int64)
	ttlMillis, ttlOK := values[1].(int64)
	if !countOK || !ttlOK {
		return 0, 0, fmt.Errorf("unexpected script response: %v", res)
	}
	if ttlMillis < 0 {
		// PTTL returns a negative value for keys without expiry; treat the
		// full window as remaining.
		ttlMillis = window.Milliseconds()
	}

	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

// Close closes the underlying client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
