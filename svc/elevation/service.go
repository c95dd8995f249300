package elevation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/audit"
	"github.com/dmitrymomot/elevate/pkg/enrollment"
	"github.com/dmitrymomot/elevate/pkg/logger"
	"github.com/dmitrymomot/elevate/pkg/replay"
	"github.com/dmitrymomot/elevate/pkg/totp"
)

// SecretSource returns a principal's confirmed secret or enrollment.ErrSecretNotFound.
// enrollment.Store implementations satisfy it.
type SecretSource interface {
	Confirmed(ctx context.Context, principalID string) (enrollment.Secret, error)
}

// Limiter throttles verification attempts per key. ratelimiter.Bucket satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// resetter is implemented by limiters that can forgive a key after success.
type resetter interface {
	Reset(ctx context.Context, key string) error
}

// Service ties secret lookup, code verification, replay protection and
// admin sessions together.
type Service struct {
	secrets  SecretSource
	guard    *replay.Guard
	sessions *adminsession.Manager
	limiter  Limiter
	cfg      Config
	totpCfg  totp.Config
	now      func() time.Time
	log      *slog.Logger
	audit    audit.Recorder
}

// Option configures a Service.
type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg.withDefaults() }
}

func WithTOTPConfig(cfg totp.Config) Option {
	return func(s *Service) { s.totpCfg = cfg.WithDefaults() }
}

// WithLimiter enables attempt throttling. Without it every attempt is evaluated.
func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithAuditor(r audit.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// New creates the service. All three collaborators are required.
func New(secrets SecretSource, guard *replay.Guard, sessions *adminsession.Manager, opts ...Option) *Service {
	if secrets == nil || guard == nil || sessions == nil {
		panic("elevation: secrets, guard and sessions are required")
	}

	s := &Service{
		secrets:  secrets,
		guard:    guard,
		sessions: sessions,
		cfg:      DefaultConfig(),
		totpCfg:  totp.DefaultConfig(),
		now:      time.Now,
		log:      slog.Default(),
		audit:    audit.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyAndConsume checks code against the principal's confirmed secret at time t
// and, if it matches, consumes the matched time step. Rejections are reported in
// Outcome.Result; a non-nil error means the decision could not be made and the
// attempt must be refused.
func (s *Service) VerifyAndConsume(ctx context.Context, principalID, code string, t time.Time) (Outcome, error) {
	if principalID == "" {
		return Outcome{}, ErrMissingPrincipal
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, s.cfg.LimiterPrefix+principalID)
		if err != nil {
			return Outcome{}, s.storageErr(ctx, "rate limit", principalID, err)
		}
		if !allowed {
			s.reject(ctx, audit.ActionVerificationLimited, principalID, ResultRateLimited)
			return Outcome{Result: ResultRateLimited}, nil
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	secret, err := s.secrets.Confirmed(sctx, principalID)
	cancel()
	if errors.Is(err, enrollment.ErrSecretNotFound) {
		s.reject(ctx, audit.ActionVerificationFailed, principalID, ResultNotEnrolled)
		return Outcome{Result: ResultNotEnrolled}, nil
	}
	if err != nil {
		return Outcome{}, s.storageErr(ctx, "load secret", principalID, err)
	}

	res, err := totp.Verify(secret.Key, code, t, totp.WithConfig(s.totpCfg))
	if err != nil {
		// Stored secret or configuration is broken. Not the user's fault.
		s.log.ErrorContext(ctx, "totp verification misconfigured",
			logger.PrincipalID(principalID),
			logger.Component("elevation"),
			logger.Error(err),
		)
		return Outcome{}, err
	}
	if !res.Valid {
		s.reject(ctx, audit.ActionVerificationFailed, principalID, ResultInvalidCode)
		return Outcome{Result: ResultInvalidCode}, nil
	}

	receipt, err := s.guard.CheckAndConsume(ctx, principalID, res.Counter)
	switch {
	case errors.Is(err, replay.ErrReplayRejected):
		s.reject(ctx, audit.ActionReplayRejected, principalID, ResultReplayRejected)
		return Outcome{Result: ResultReplayRejected}, nil
	case errors.Is(err, replay.ErrUnknownPrincipal):
		// Secret removed between lookup and consumption.
		s.reject(ctx, audit.ActionVerificationFailed, principalID, ResultNotEnrolled)
		return Outcome{Result: ResultNotEnrolled}, nil
	case err != nil:
		return Outcome{}, s.storageErr(ctx, "consume code", principalID, err)
	}

	if r, ok := s.limiter.(resetter); ok {
		if err := r.Reset(ctx, s.cfg.LimiterPrefix+principalID); err != nil {
			s.log.WarnContext(ctx, "failed to reset attempt limiter",
				logger.PrincipalID(principalID),
				logger.Component("elevation"),
				logger.Error(err),
			)
		}
	}

	s.audit.Record(ctx, audit.ActionVerificationPassed, audit.WithPrincipal(principalID))
	return Outcome{Result: ResultAccepted, Receipt: receipt}, nil
}

// Elevate verifies code at the current time and opens an admin session with the
// resulting receipt. A previously active session of the principal is superseded.
// Rejections are returned as errors: ErrInvalidCode, replay.ErrReplayRejected,
// ErrNotEnrolled or ErrRateLimited.
func (s *Service) Elevate(ctx context.Context, principalID, code, reason string, opts ...adminsession.StartOption) (*adminsession.Session, error) {
	out, err := s.VerifyAndConsume(ctx, principalID, code, s.now())
	if err != nil {
		return nil, err
	}
	if !out.Accepted() {
		return nil, out.Err()
	}

	opts = append([]adminsession.StartOption{adminsession.WithReason(reason)}, opts...)
	return s.sessions.Start(ctx, principalID, out.Receipt, opts...)
}

// Drop ends the principal's admin session on logout. It returns
// adminsession.ErrNoActiveSession when there is nothing to end; callers usually
// treat that as success (see adminsession.IsInformational).
func (s *Service) Drop(ctx context.Context, principalID string) error {
	if principalID == "" {
		return ErrMissingPrincipal
	}
	return s.sessions.End(ctx, principalID)
}

// Active returns the principal's current admin session.
func (s *Service) Active(ctx context.Context, principalID string) (*adminsession.Session, error) {
	return s.sessions.Active(ctx, principalID)
}

func (s *Service) reject(ctx context.Context, action, principalID string, result Result) {
	s.audit.Record(ctx, action,
		audit.WithPrincipal(principalID),
		audit.WithResult(audit.ResultFailure),
		audit.WithReason(string(result)),
	)
	s.log.InfoContext(ctx, "second factor rejected",
		logger.PrincipalID(principalID),
		logger.Outcome(string(result)),
		logger.Component("elevation"),
	)
}

func (s *Service) storageErr(ctx context.Context, op, principalID string, err error) error {
	s.log.ErrorContext(ctx, "elevation dependency failure",
		slog.String("op", op),
		logger.PrincipalID(principalID),
		logger.Component("elevation"),
		logger.Error(err),
	)
	return errors.Join(ErrStorageUnavailable, err)
}
