package enrollment

import (
	"time"

	"github.com/dmitrymomot/elevate/pkg/totp"
)

// State is the lifecycle state of a secret.
type State string

const (
	// StatePending secrets were issued but possession was not yet demonstrated.
	StatePending State = "pending"
	// StateConfirmed secrets are used for verification. Immutable except for rotation.
	StateConfirmed State = "confirmed"
)

// Secret is a shared TOTP secret bound to one principal.
// LastCounter is the consumption record: the highest time step accepted for this secret.
type Secret struct {
	PrincipalID string     `json:"principal_id"`
	Key         string     `json:"-"` // base32, never serialized
	State       State      `json:"state"`
	LastCounter int64      `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// IsConfirmed reports whether the secret can be used for verification.
func (s Secret) IsConfirmed() bool {
	return s.State == StateConfirmed
}

// ConfirmSecret moves a pending secret to confirmed when code is valid at t.
// The matched counter becomes the initial consumption record so the confirming
// code cannot be replayed. The input is not modified.
func ConfirmSecret(s Secret, code string, t time.Time, opts ...totp.Option) (Secret, error) {
	if s.State != StatePending {
		return s, ErrNotPending
	}

	res, err := totp.Verify(s.Key, code, t, opts...)
	if err != nil {
		return s, err
	}
	if !res.Valid {
		return s, ErrEnrollmentFailed
	}

	confirmedAt := t
	s.State = StateConfirmed
	s.LastCounter = res.Counter
	s.ConfirmedAt = &confirmedAt
	return s, nil
}
