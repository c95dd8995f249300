package elevation

import "time"

// Config holds service level settings. TOTP parameters come from totp.Config.
type Config struct {
	StorageTimeout time.Duration `env:"ELEVATION_STORAGE_TIMEOUT" envDefault:"3s"`
	LimiterPrefix  string        `env:"ELEVATION_LIMITER_PREFIX" envDefault:"verify:"`
}

func DefaultConfig() Config {
	return Config{StorageTimeout: 3 * time.Second, LimiterPrefix: "verify:"}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = d.StorageTimeout
	}
	if c.LimiterPrefix == "" {
		c.LimiterPrefix = d.LimiterPrefix
	}
	return c
}
