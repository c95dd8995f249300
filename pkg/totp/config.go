package totp

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
	"time"
)

const (
	DefaultDigits     = 6      // Standard 6-digit TOTP codes
	DefaultPeriod     = 30     // 30-second time step (RFC 6238 standard)
	DefaultAlgorithm  = "SHA1" // HMAC-SHA1 (RFC 6238 standard, what authenticator apps assume)
	DefaultDriftSteps = 1      // Accept T-1, T and T+1

	MinDigits     = 6
	MaxDigits     = 8
	MaxDriftSteps = 10
)

// Config holds the TOTP parameters shared between the server and the authenticator.
// Zero values are replaced with RFC 6238 defaults by WithDefaults.
type Config struct {
	Digits     int    `env:"TOTP_DIGITS" envDefault:"6"`
	Period     int    `env:"TOTP_PERIOD" envDefault:"30"` // seconds
	Algorithm  string `env:"TOTP_ALGORITHM" envDefault:"SHA1"`
	DriftSteps int    `env:"TOTP_DRIFT_STEPS" envDefault:"1"`
}

// DefaultConfig returns the RFC 6238 defaults with a ±1 step drift window.
func DefaultConfig() Config {
	return Config{
		Digits:     DefaultDigits,
		Period:     DefaultPeriod,
		Algorithm:  DefaultAlgorithm,
		DriftSteps: DefaultDriftSteps,
	}
}

// WithDefaults fills zero-valued fields with defaults.
// DriftSteps is left alone: zero is a valid (strict) window.
func (c Config) WithDefaults() Config {
	if c.Digits == 0 {
		c.Digits = DefaultDigits
	}
	if c.Period == 0 {
		c.Period = DefaultPeriod
	}
	if c.Algorithm == "" {
		c.Algorithm = DefaultAlgorithm
	}
	c.Algorithm = strings.ToUpper(c.Algorithm)
	return c
}

// Validate reports ErrInvalidConfig for values the engine refuses to work with.
func (c Config) Validate() error {
	if c.Digits < MinDigits || c.Digits > MaxDigits {
		return fmt.Errorf("%w: digits must be between %d and %d", ErrInvalidConfig, MinDigits, MaxDigits)
	}
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if c.DriftSteps < 0 || c.DriftSteps > MaxDriftSteps {
		return fmt.Errorf("%w: drift steps must be between 0 and %d", ErrInvalidConfig, MaxDriftSteps)
	}
	if _, ok := hashFuncs[strings.ToUpper(c.Algorithm)]; !ok {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	return nil
}

// Step returns the period as a time.Duration.
func (c Config) Step() time.Duration {
	return time.Duration(c.Period) * time.Second
}

func (c Config) hash() func() hash.Hash {
	return hashFuncs[strings.ToUpper(c.Algorithm)]
}

var hashFuncs = map[string]func() hash.Hash{
	"SHA1":   sha1.New,
	"SHA256": sha256.New,
	"SHA512": sha512.New,
}

// Option overrides a single Config field for one Generate/Verify call.
type Option func(*Config)

func WithDigits(digits int) Option {
	return func(c *Config) { c.Digits = digits }
}

func WithPeriod(seconds int) Option {
	return func(c *Config) { c.Period = seconds }
}

func WithAlgorithm(algorithm string) Option {
	return func(c *Config) { c.Algorithm = algorithm }
}

func WithDriftSteps(steps int) Option {
	return func(c *Config) { c.DriftSteps = steps }
}

// WithConfig replaces the whole configuration; later options still apply on top.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg.WithDefaults() }
}

func buildConfig(opts []Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
