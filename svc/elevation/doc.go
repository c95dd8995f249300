// Package elevation is the entry point for privileged admin access.
//
// A Service looks up the principal's confirmed TOTP secret, verifies the
// submitted code inside the configured drift window, consumes the matched time
// step through the replay guard and, for Elevate, opens an admin session with
// the resulting single-use receipt.
//
//	svc := elevation.New(secretStore, guard, sessions,
//		elevation.WithLimiter(bucket),
//		elevation.WithAuditor(auditLog),
//	)
//
//	session, err := svc.Elevate(ctx, adminID, code, "refund review")
//	switch {
//	case errors.Is(err, elevation.ErrInvalidCode):
//		// ask again
//	case errors.Is(err, replay.ErrReplayRejected):
//		// code already used; logged as a security event
//	case errors.Is(err, elevation.ErrStorageUnavailable):
//		// fail closed
//	}
//
// Wrong codes, replays, missing enrollment and throttled attempts are distinct
// results and are audited under distinct actions. Infrastructure failures are
// returned as errors and never turn into an accepted attempt.
package elevation
