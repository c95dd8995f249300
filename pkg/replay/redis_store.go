package replay

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "totp:last_counter:"

// advanceScript performs the compare-and-set server side so concurrent
// verifications for one principal cannot both succeed.
var advanceScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(ARGV[1]) <= tonumber(current) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStore keeps consumption records in Redis, shared by every application instance.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the "totp:last_counter:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	if client == nil {
		panic("replay: redis client cannot be nil")
	}
	s := &RedisStore{client: client, prefix: defaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advance implements Store.
func (s *RedisStore) Advance(ctx context.Context, principalID string, counter int64) (bool, error) {
	res, err := advanceScript.Run(ctx, s.client, []string{s.prefix + principalID}, counter).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Last implements Reader.
func (s *RedisStore) Last(ctx context.Context, principalID string) (int64, bool, error) {
	c, err := s.client.Get(ctx, s.prefix+principalID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return c, true, nil
}
