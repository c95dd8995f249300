package audit

import (
	"fmt"
	"time"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actions recorded by the second-factor and admin-session components.
const (
	ActionEnrollmentStarted   = "mfa.enrollment.started"
	ActionEnrollmentConfirmed = "mfa.enrollment.confirmed"
	ActionEnrollmentFailed    = "mfa.enrollment.failed"
	ActionEnrollmentDisabled  = "mfa.enrollment.disabled"
	ActionVerificationPassed  = "mfa.verification.passed"
	ActionVerificationFailed  = "mfa.verification.failed"
	ActionVerificationLimited = "mfa.verification.rate_limited"
	ActionReplayRejected      = "mfa.verification.replay_rejected"
	ActionSessionStarted      = "admin_session.started"
	ActionSessionSuperseded   = "admin_session.superseded"
	ActionSessionEnded        = "admin_session.ended"
	ActionSessionTerminated   = "admin_session.terminated"
	ActionSessionExpired      = "admin_session.expired"
)

// Event represents a single audit log entry
type Event struct {
	ID          string         `json:"id" bson:"_id"`
	PrincipalID string         `json:"principal_id" bson:"principal_id"`
	Action      string         `json:"action" bson:"action"`
	Result      Result         `json:"result" bson:"result"`
	SessionID   string         `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Reason      string         `json:"reason,omitempty" bson:"reason,omitempty"`
	RequestID   string         `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
}

// Validate checks if the event has all required fields
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption applies configuration to an Event during creation.
type EventOption func(*Event)

// WithPrincipal sets the principal the event is about.
func WithPrincipal(id string) EventOption {
	return func(e *Event) { e.PrincipalID = id }
}

// WithSession links the event to an admin session.
func WithSession(id string) EventOption {
	return func(e *Event) { e.SessionID = id }
}

// WithReason records a short, non-sensitive explanation.
func WithReason(reason string) EventOption {
	return func(e *Event) { e.Reason = reason }
}

// WithResult sets the event result
func WithResult(result Result) EventOption {
	return func(e *Event) { e.Result = result }
}

// WithMetadata adds metadata to the event
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}
