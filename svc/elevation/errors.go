package elevation

import "errors"

var (
	ErrMissingPrincipal = errors.New("elevation.missing_principal")
	ErrInvalidCode      = errors.New("elevation.invalid_code")
	ErrNotEnrolled      = errors.New("elevation.not_enrolled")
	ErrRateLimited      = errors.New("elevation.rate_limited")

	// ErrStorageUnavailable wraps failures of the secret store, the replay guard
	// or the limiter. The attempt is refused.
	ErrStorageUnavailable = errors.New("elevation.storage_unavailable")
)
