package replay

import "context"

// Store persists the highest consumed time-step counter per principal.
type Store interface {
	// Advance atomically replaces the recorded counter with counter if and only if
	// counter is strictly greater than the recorded one (or nothing is recorded yet).
	// It reports whether the record moved. A false result must leave the record untouched.
	Advance(ctx context.Context, principalID string, counter int64) (bool, error)
}

// Reader is implemented by stores that can report the recorded counter without
// changing it. ok is false when nothing is recorded for the principal.
type Reader interface {
	Last(ctx context.Context, principalID string) (counter int64, ok bool, err error)
}
