package adminsession

import "errors"

var (
	// ErrNoActiveSession is informational: there was nothing to end or return.
	ErrNoActiveSession = errors.New("admin_session.no_active_session")

	// ErrInvalidProof means the verified-factor proof is missing, belongs to another
	// principal, is too old or was already used.
	ErrInvalidProof = errors.New("admin_session.invalid_proof")

	// ErrStorageUnavailable wraps store failures and timeouts. Callers must deny elevation.
	ErrStorageUnavailable = errors.New("admin_session.storage_unavailable")

	ErrMissingPrincipal = errors.New("admin_session.missing_principal")
	ErrSessionEnded     = errors.New("admin_session.already_ended")
)

// IsInformational reports whether err is an outcome that must not be surfaced to
// the user as a failure.
func IsInformational(err error) bool {
	return errors.Is(err, ErrNoActiveSession)
}
