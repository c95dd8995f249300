package totp

import "errors"

var (
	// ErrInvalidSecret is returned when a secret is not valid base32 or is shorter than MinSecretBytes.
	ErrInvalidSecret = errors.New("totp: invalid secret")

	// ErrInvalidConfig is returned for digits outside [6,8], a non-positive period,
	// an out-of-range drift window or an unknown algorithm.
	ErrInvalidConfig = errors.New("totp: invalid config")

	ErrMissingSecret             = errors.New("totp: missing secret")
	ErrMissingAccountName        = errors.New("totp: missing account name")
	ErrMissingIssuer             = errors.New("totp: missing issuer")
	ErrFailedToGenerateSecretKey = errors.New("totp: failed to generate secret key")

	ErrEncryptionKeyNotSet        = errors.New("totp: encryption key not set")
	ErrInvalidEncryptionKeyLength = errors.New("totp: invalid encryption key length")
	ErrFailedToLoadEncryptionKey  = errors.New("totp: failed to load encryption key")
	ErrFailedToEncryptSecret      = errors.New("totp: failed to encrypt secret")
	ErrFailedToDecryptSecret      = errors.New("totp: failed to decrypt secret")
	ErrInvalidCipherTooShort      = errors.New("totp: cipher text too short")
)
