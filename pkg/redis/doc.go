// Package redis connects to Redis with go-redis/v9.
//
// The client returned by Connect backs replay.RedisStore, which keeps the
// per-principal consumption records when several service instances share one
// replay guard.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	guard := replay.NewGuard(replay.NewRedisStore(client, replay.WithKeyPrefix(cfg.KeyPrefix)))
//
// Healthcheck returns a probe for readiness endpoints.
package redis
