package enrollment

import (
	"errors"

	"github.com/dmitrymomot/elevate/pkg/replay"
)

var (
	// ErrEnrollmentFailed is a wrong confirmation code. The pending secret stays in place.
	ErrEnrollmentFailed = errors.New("enrollment.failed")

	ErrSecretNotFound      = errors.New("enrollment.secret_not_found")
	ErrNoPendingEnrollment = errors.New("enrollment.no_pending")
	ErrAlreadyConfirmed    = errors.New("enrollment.already_confirmed")
	ErrNotPending          = errors.New("enrollment.not_pending")
	ErrMissingPrincipal    = errors.New("enrollment.missing_principal")

	// ErrStorageUnavailable wraps backend failures. Fail closed.
	ErrStorageUnavailable = errors.New("enrollment.storage_unavailable")

	// ErrReplayRejected is the replay guard sentinel, re-exported for callers of Confirm.
	ErrReplayRejected = replay.ErrReplayRejected
)
