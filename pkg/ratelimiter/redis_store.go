package ratelimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "ratelimit:"

// consumeScript is the MemoryStore algorithm run server side.
// KEYS[1] bucket hash; ARGV: tokens, capacity, refill rate, interval ms, now ms, ttl ms.
var consumeScript = redis.NewScript(`
local tokens   = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate     = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local now      = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local left = tonumber(state[1])
local last = tonumber(state[2])
if left == nil then
	left = capacity
	last = now
end

local elapsed = now - last
if elapsed >= interval then
	local intervals = math.min(math.floor(elapsed / interval), math.floor(capacity / rate) + 1)
	left = math.min(left + intervals * rate, capacity)
	last = now
end

local remaining = left - tokens
if left >= tokens then
	left = remaining
end

redis.call('HSET', KEYS[1], 'tokens', left, 'last', last)
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return {remaining, last + interval}
`)

// RedisStore shares buckets between application instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		panic("ratelimiter: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config, now time.Time) (int, time.Time, error) {
	// A full refill takes capacity/rate intervals; keep the key a bit longer.
	ttl := cfg.RefillInterval * time.Duration(cfg.Capacity/cfg.RefillRate+2)

	res, err := consumeScript.Run(ctx, s.client, []string{s.prefix + key},
		tokens, cfg.Capacity, cfg.RefillRate,
		cfg.RefillInterval.Milliseconds(), now.UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
