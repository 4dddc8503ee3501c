// Package ratelimit meters image resolutions per client with token buckets
// kept in Redis, so every API replica draws from the same budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "pixelsuffix:ratelimit"

// ErrCostExceedsCapacity is returned for a charge no bucket could ever
// satisfy, such as a batch larger than the bucket.
var ErrCostExceedsCapacity = errors.New("charge exceeds bucket capacity")

// Charge is one metered call: Cost resolutions billed to Subject.
type Charge struct {
	Subject string
	Cost    int
}

type Decision struct {
	Allowed    bool
	Cost       int
	Remaining  int64
	RetryAfter time.Duration
}

// The bucket refills continuously; a rejected charge leaves the tokens
// untouched and reports how long until Cost tokens are available.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local state = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now_ms

tokens = math.min(capacity, tokens + math.max(0, now_ms - last) * refill_per_ms)

local allowed = 0
local wait_ms = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait_ms = math.ceil((cost - tokens) / refill_per_ms)
end

redis.call("HSET", key, "tokens", tokens, "timestamp", now_ms)
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, math.floor(tokens), wait_ms}
`)

type RedisTokenBucket struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

// NewRedisTokenBucket allows capacity resolutions per window for each
// subject.
func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case capacity <= 0:
		return nil, errors.New("capacity must be positive")
	case window <= 0:
		return nil, errors.New("window must be positive")
	}

	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:      client,
		capacity:    int64(capacity),
		refillPerMS: float64(capacity) / float64(max(window.Milliseconds(), 1)),
		ttl:         2 * window,
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

// Key returns the Redis key holding subject's bucket.
func (l *RedisTokenBucket) Key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

// Charge bills c.Cost tokens to c.Subject. A cost below one is billed as one.
func (l *RedisTokenBucket) Charge(ctx context.Context, c Charge) (Decision, error) {
	cost := max(c.Cost, 1)
	if int64(cost) > l.capacity {
		return Decision{Cost: cost}, fmt.Errorf("%w: cost=%d capacity=%d", ErrCostExceedsCapacity, cost, l.capacity)
	}

	values, err := tokenBucketScript.Run(
		ctx,
		l.client,
		[]string{l.Key(c.Subject)},
		l.capacity,
		l.refillPerMS,
		l.now().UTC().UnixMilli(),
		cost,
		l.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("token bucket script returned %d values", len(values))
	}

	return Decision{
		Allowed:    values[0] == 1,
		Cost:       cost,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}
