// Package enrollment provisions TOTP secrets and runs the enrollment protocol.
//
// A secret starts as pending. It becomes confirmed only after the principal
// submits a code generated from it, which proves the authenticator app holds
// the secret. The time step of that code is recorded as consumed so it cannot
// be replayed for a login.
//
// A principal has at most one pending and one confirmed secret. Calling Begin
// while a confirmed secret exists starts a rotation: the old secret keeps
// working until the new one is confirmed, and the swap happens atomically in
// Store.Promote.
//
//	p := enrollment.NewProvisioner(store, "Acme")
//	e, err := p.Begin(ctx, "admin-1", "alice@example.com")
//	// show e.QRCode or e.URI to the user, then
//	_, err = p.Confirm(ctx, "admin-1", code, time.Now())
package enrollment
