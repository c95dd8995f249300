// Package adminsession manages privileged admin sessions ("admin mode").
//
// A principal has at most one active session. Start requires a FactorProof,
// normally the replay.Receipt returned after a code was verified and consumed,
// and opens the new session while force-ending any previous one as a single
// Store.Open call, so the last elevation wins and two concurrent elevations can
// never both stay active.
//
// Session lifecycle:
//
//	NoSession -> Active -> Ended (logout | superseded | terminated | expired)
//
// Ended sessions are terminal. End on a principal without an active session
// returns ErrNoActiveSession, which is informational (see IsInformational).
// Any other store failure, including a timeout, is ErrStorageUnavailable and
// must be treated as a denied elevation.
package adminsession
