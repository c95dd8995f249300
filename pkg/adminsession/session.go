package adminsession

import (
	"time"

	"github.com/google/uuid"
)

// EndReason explains why a session was closed.
type EndReason string

const (
	EndReasonLogout     EndReason = "logout"
	EndReasonSuperseded EndReason = "superseded"
	EndReasonTerminated EndReason = "terminated"
	EndReasonExpired    EndReason = "expired"
)

// Session is one elevation episode. A nil EndedAt means the session is active.
// Ended sessions are terminal; a new elevation always creates a new Session.
type Session struct {
	ID          uuid.UUID  `json:"id"`
	PrincipalID string     `json:"principal_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	EndReason   EndReason  `json:"end_reason,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Scope       string     `json:"scope,omitempty"`
}

// NewSession creates an active session started at the given time.
func NewSession(principalID string, startedAt time.Time) Session {
	return Session{
		ID:          uuid.New(),
		PrincipalID: principalID,
		StartedAt:   startedAt,
	}
}

// IsActive returns true if the session has not ended
func (s *Session) IsActive() bool {
	return s != nil && s.EndedAt == nil
}

// MarkEnded moves an active session to ended.
func (s *Session) MarkEnded(at time.Time, reason EndReason) error {
	if !s.IsActive() {
		return ErrSessionEnded
	}
	s.EndedAt = &at
	s.EndReason = reason
	return nil
}

// Duration returns how long the session lasted, or has lasted so far at now.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

func (s Session) clone() Session {
	if s.EndedAt != nil {
		at := *s.EndedAt
		s.EndedAt = &at
	}
	return s
}
