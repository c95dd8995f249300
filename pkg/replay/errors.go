package replay

import "errors"

var (
	// ErrReplayRejected means the counter was already consumed (or an older one was submitted).
	// It is a security event and must be reported separately from a wrong code.
	ErrReplayRejected = errors.New("replay.rejected")

	// ErrUnknownPrincipal is returned by stores that colocate the consumption record
	// with a confirmed secret when the principal has none.
	ErrUnknownPrincipal = errors.New("replay.unknown_principal")

	// ErrStorageUnavailable wraps any backend failure. Callers must fail closed.
	ErrStorageUnavailable = errors.New("replay.storage_unavailable")
)
