// Package ratelimiter limits how often a key may perform an action using a
// token bucket.
//
// The elevation service uses it to throttle second-factor attempts per
// principal, which keeps the six-digit code space out of reach of online
// guessing. Buckets live in process memory (MemoryStore) or in Redis
// (RedisStore) when several instances must share the budget.
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	ok, err := limiter.Allow(ctx, "verify:"+principalID)
package ratelimiter
