package bootstrap

import "time"

// Config selects backends and tunes the shared infrastructure.
type Config struct {
	Issuer string `env:"TOTP_ISSUER" envDefault:"Elevate"`

	ReplayBackend string `env:"REPLAY_BACKEND" envDefault:"postgres"` // postgres or redis
	RateLimit     bool   `env:"VERIFY_RATE_LIMIT" envDefault:"true"`

	AuditSink          string        `env:"AUDIT_SINK" envDefault:"postgres"` // postgres or mongo
	AuditBufferSize    int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	AuditBatchSize     int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	AuditFlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"1s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}
