// Package replay prevents a one-time code from being accepted twice.
//
// For every principal the guard keeps the highest time-step counter that was
// successfully consumed. A counter is accepted only if it is strictly greater
// than the recorded one, and the comparison and update happen as a single
// atomic step in the backing Store: a mutex for MemoryStore, a Lua script for
// RedisStore and a conditional UPDATE for the PostgreSQL store in package
// pgstore.
//
// A successful CheckAndConsume returns a Receipt. The receipt is the proof the
// admin session manager requires before it opens an elevated session, and it
// can be redeemed only once.
//
//	res, _ := totp.Verify(secret, code, now)
//	if !res.Valid {
//	    return ErrInvalidCode
//	}
//	receipt, err := guard.CheckAndConsume(ctx, principalID, res.Counter)
//	if errors.Is(err, replay.ErrReplayRejected) {
//	    // security event: log separately from a wrong code
//	}
package replay
