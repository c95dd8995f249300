package adminsession

import (
	"context"
	"time"
)

// Store persists admin sessions. Each method is a single atomic operation.
type Store interface {
	// Open ends the principal's active session, if any, with EndReasonSuperseded at
	// s.StartedAt and saves s as the new active session. It returns the superseded
	// session or nil. Two concurrent calls never leave two active sessions.
	Open(ctx context.Context, s Session) (*Session, error)

	// End closes the active session. Returns ErrNoActiveSession when there is none.
	End(ctx context.Context, principalID string, at time.Time, reason EndReason) (*Session, error)

	// Active returns the active session or ErrNoActiveSession.
	Active(ctx context.Context, principalID string) (*Session, error)

	// EndStartedBefore closes every active session started before cutoff with
	// EndReasonExpired and returns them.
	EndStartedBefore(ctx context.Context, cutoff, at time.Time) ([]Session, error)

	// History returns up to limit sessions of the principal, newest first.
	// Zero means no limit; the manager never passes a negative value.
	History(ctx context.Context, principalID string, limit int) ([]Session, error)
}
