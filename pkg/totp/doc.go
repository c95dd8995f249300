// Package totp implements the stateless part of time-based one-time passwords
// (RFC 6238 on top of RFC 4226 HOTP).
//
// The package generates and verifies codes, renders provisioning URIs for
// authenticator apps and seals secrets for storage. It keeps no state: whether a
// correct code may still be used is decided by package replay, which records the
// counter returned from Verify.
//
// # Usage
//
//	secret, _ := totp.GenerateSecretKey(rand.Reader)
//
//	uri, _ := totp.URI(totp.Params{
//	    Secret:      secret,
//	    AccountName: "alice@example.com",
//	    Issuer:      "Acme",
//	})
//
//	res, err := totp.Verify(secret, "123456", time.Now(), totp.WithDriftSteps(1))
//	if err != nil {
//	    // ErrInvalidSecret or ErrInvalidConfig: configuration problem, do not retry
//	}
//	if res.Valid {
//	    // hand res.Counter to the replay guard
//	}
//
// # Error Handling
//
// Malformed secrets return ErrInvalidSecret and unsupported parameters return
// ErrInvalidConfig. A wrong code is never an error. Errors never contain the
// secret or the computed codes.
package totp
