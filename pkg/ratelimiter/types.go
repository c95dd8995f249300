package ratelimiter

import "time"

// Config describes a token bucket. The defaults allow a burst of five
// verification attempts and one more every 30 seconds.
type Config struct {
	Capacity       int           `env:"VERIFY_RATE_CAPACITY" envDefault:"5"`
	RefillRate     int           `env:"VERIFY_RATE_REFILL" envDefault:"1"`
	RefillInterval time.Duration `env:"VERIFY_RATE_INTERVAL" envDefault:"30s"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{Capacity: 5, RefillRate: 1, RefillInterval: 30 * time.Second}
}

// Result is the bucket state after a Take.
type Result struct {
	Limit     int
	Remaining int // negative when the attempt was denied
	ResetAt   time.Time
}

func (r Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long the caller should wait, measured from now.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0, c.RefillRate <= 0, c.RefillInterval <= 0:
		return ErrInvalidConfig
	}
	return nil
}

// refill returns the token count after the intervals elapsed since last,
// and the new refill timestamp.
func (c Config) refill(tokens int, last, now time.Time) (int, time.Time) {
	elapsed := now.Sub(last)
	if elapsed < c.RefillInterval {
		return tokens, last
	}
	// Capped so long idle periods cannot overflow.
	maxIntervals := int64(c.Capacity/c.RefillRate + 1)
	intervals := min(int64(elapsed/c.RefillInterval), maxIntervals)
	return min(tokens+int(intervals)*c.RefillRate, c.Capacity), now
}
