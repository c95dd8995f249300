package adminsession

import "time"

// Config holds admin session policy.
type Config struct {
	// ProofTTL is how long after verification a factor proof may open a session.
	ProofTTL time.Duration `env:"ADMIN_SESSION_PROOF_TTL" envDefault:"1m"`

	// MaxAge is the expiry policy applied by Expire when no explicit age is given.
	MaxAge time.Duration `env:"ADMIN_SESSION_MAX_AGE" envDefault:"1h"`

	// StorageTimeout bounds every store call.
	StorageTimeout time.Duration `env:"ADMIN_SESSION_STORAGE_TIMEOUT" envDefault:"3s"`

	// SweepInterval is how often background sweepers call Expire.
	SweepInterval time.Duration `env:"ADMIN_SESSION_SWEEP_INTERVAL" envDefault:"1m"`
}

// DefaultConfig returns default admin session configuration
func DefaultConfig() Config {
	return Config{
		ProofTTL:       time.Minute,
		MaxAge:         time.Hour,
		StorageTimeout: 3 * time.Second,
		SweepInterval:  time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProofTTL <= 0 {
		c.ProofTTL = d.ProofTTL
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = d.StorageTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}
