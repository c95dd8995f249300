package totp

import (
	"crypto/hmac"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"
)

// MinSecretBytes is the shortest decoded secret accepted (80 bits).
const MinSecretBytes = 10

// SecretBytes is the size of generated secrets (160 bits, RFC 4226 recommendation).
const SecretBytes = 20

var (
	// ValidateSecretKeyRegex ensures Base32 format: uppercase A-Z, digits 2-7, optional padding
	ValidateSecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Result is the outcome of Verify. Counter is only meaningful when Valid is true.
type Result struct {
	Valid   bool
	Counter int64
}

// GenerateSecretKey reads SecretBytes from r and returns them Base32-encoded without padding.
// r must be a cryptographically secure source such as crypto/rand.Reader.
func GenerateSecretKey(r io.Reader) (string, error) {
	secret := make([]byte, SecretBytes)
	if _, err := io.ReadFull(r, secret); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecretKey, err)
	}
	return b32.EncodeToString(secret), nil
}

// DecodeSecret normalizes and decodes a Base32 secret.
// Lowercase input, spaces and trailing padding are tolerated since users copy secrets by hand.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	if secret == "" || !ValidateSecretKeyRegex.MatchString(secret) {
		return nil, ErrInvalidSecret
	}

	key, err := b32.DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	if len(key) < MinSecretBytes {
		return nil, fmt.Errorf("%w: at least %d bits required", ErrInvalidSecret, MinSecretBytes*8)
	}
	return key, nil
}

// Counter returns floor(unix(t) / period). Times before the epoch round toward minus infinity.
func Counter(t time.Time, period int) int64 {
	unix := t.Unix()
	p := int64(period)
	c := unix / p
	if unix%p != 0 && unix < 0 {
		c--
	}
	return c
}

// Generate returns the code for the time step containing t.
func Generate(secret string, t time.Time, opts ...Option) (string, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return "", err
	}

	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}

	return HOTP(key, Counter(t, cfg.Period), cfg), nil
}

// Verify checks code against every counter in [T-drift, T+drift] where T is the step containing t.
// Every candidate is compared in constant time and the first matching counter is reported.
// A wrong or malformed code is a normal Result{Valid: false}, not an error.
// Verify does not know whether the matched counter was consumed before; see package replay.
func Verify(secret, code string, t time.Time, opts ...Option) (Result, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return Result{}, err
	}

	key, err := DecodeSecret(secret)
	if err != nil {
		return Result{}, err
	}

	code = strings.TrimSpace(code)
	if !isNumeric(code, cfg.Digits) {
		return Result{}, nil
	}

	current := Counter(t, cfg.Period)
	res := Result{}
	for i := -cfg.DriftSteps; i <= cfg.DriftSteps; i++ {
		counter := current + int64(i)
		candidate := HOTP(key, counter, cfg)
		// No early return: the loop costs the same whether or not a step matches.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 && !res.Valid {
			res = Result{Valid: true, Counter: counter}
		}
	}

	return res, nil
}

// HOTP implements the RFC 4226 HMAC-based One-Time Password algorithm for an already
// validated configuration and returns the zero-padded code.
func HOTP(key []byte, counter int64, cfg Config) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(cfg.hash(), key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation: low nibble of the last byte selects a 4-byte window, MSB cleared.
	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := int64(bin) % int64(math.Pow10(cfg.Digits))
	return fmt.Sprintf("%0*d", cfg.Digits, code)
}

func isNumeric(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
