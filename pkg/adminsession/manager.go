package adminsession

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/elevate/pkg/audit"
	"github.com/dmitrymomot/elevate/pkg/logger"
)

// FactorProof shows that a second factor was verified and its code consumed.
// replay.Receipt implements it.
type FactorProof interface {
	PrincipalID() string
	VerifiedAt() time.Time
	// Redeem marks the proof as used and reports whether this was the first use.
	Redeem() bool
}

// Manager enforces at most one active admin session per principal.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
	log   *slog.Logger
	audit audit.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg.withDefaults() }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithAuditor(r audit.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.audit = r
		}
	}
}

// NewManager creates a session manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		panic("adminsession: store cannot be nil")
	}

	m := &Manager{
		store: store,
		cfg:   DefaultConfig(),
		now:   time.Now,
		log:   slog.Default(),
		audit: audit.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartOption annotates a new session.
type StartOption func(*Session)

// WithReason records why elevation was requested.
func WithReason(reason string) StartOption {
	return func(s *Session) { s.Reason = reason }
}

// WithScope limits what the session is meant for.
func WithScope(scope string) StartOption {
	return func(s *Session) { s.Scope = scope }
}

// Start opens an elevated session for principalID. The proof must belong to the
// principal, be no older than Config.ProofTTL and not have been redeemed before.
// An already active session is ended as superseded in the same store operation.
//
// The proof is spent even if the store fails afterwards.
func (m *Manager) Start(ctx context.Context, principalID string, proof FactorProof, opts ...StartOption) (*Session, error) {
	if principalID == "" {
		return nil, ErrMissingPrincipal
	}

	now := m.now()
	if reason := m.checkProof(principalID, proof, now); reason != "" {
		m.audit.Record(ctx, audit.ActionSessionStarted,
			audit.WithPrincipal(principalID),
			audit.WithResult(audit.ResultFailure),
			audit.WithReason(reason),
		)
		m.log.WarnContext(ctx, "admin session rejected",
			logger.PrincipalID(principalID),
			slog.String("reason", reason),
			logger.Component("adminsession"),
		)
		return nil, ErrInvalidProof
	}

	s := NewSession(principalID, now)
	for _, opt := range opts {
		opt(&s)
	}

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout)
	defer cancel()

	superseded, err := m.store.Open(sctx, s)
	if err != nil {
		return nil, m.storageErr(ctx, "open", principalID, err)
	}

	if superseded != nil {
		m.audit.Record(ctx, audit.ActionSessionSuperseded,
			audit.WithPrincipal(principalID),
			audit.WithSession(superseded.ID.String()),
			audit.WithMetadata("superseded_by", s.ID.String()),
		)
	}
	m.audit.Record(ctx, audit.ActionSessionStarted,
		audit.WithPrincipal(principalID),
		audit.WithSession(s.ID.String()),
		audit.WithReason(s.Reason),
	)
	m.log.InfoContext(ctx, "admin session started",
		logger.PrincipalID(principalID),
		logger.SessionID(s.ID.String()),
		slog.Bool("superseded", superseded != nil),
		logger.Component("adminsession"),
	)

	return &s, nil
}

func (m *Manager) checkProof(principalID string, proof FactorProof, now time.Time) string {
	switch {
	case proof == nil:
		return "missing_proof"
	case proof.PrincipalID() != principalID:
		return "principal_mismatch"
	case now.Sub(proof.VerifiedAt()) > m.cfg.ProofTTL:
		return "stale_proof"
	case !proof.Redeem():
		return "proof_reused"
	}
	return ""
}

// End closes the active session on logout. When there is none it returns
// ErrNoActiveSession, which is informational; see IsInformational.
func (m *Manager) End(ctx context.Context, principalID string) error {
	return m.end(ctx, principalID, EndReasonLogout, audit.ActionSessionEnded)
}

// Terminate force-closes the active session, for example from an operator console.
func (m *Manager) Terminate(ctx context.Context, principalID string) error {
	return m.end(ctx, principalID, EndReasonTerminated, audit.ActionSessionTerminated)
}

func (m *Manager) end(ctx context.Context, principalID string, reason EndReason, action string) error {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout)
	defer cancel()

	ended, err := m.store.End(sctx, principalID, m.now(), reason)
	if errors.Is(err, ErrNoActiveSession) {
		return ErrNoActiveSession
	}
	if err != nil {
		return m.storageErr(ctx, "end", principalID, err)
	}

	m.audit.Record(ctx, action,
		audit.WithPrincipal(principalID),
		audit.WithSession(ended.ID.String()),
		audit.WithReason(string(reason)),
	)
	return nil
}

// Active returns the principal's active session or ErrNoActiveSession.
func (m *Manager) Active(ctx context.Context, principalID string) (*Session, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout)
	defer cancel()

	s, err := m.store.Active(sctx, principalID)
	if errors.Is(err, ErrNoActiveSession) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, m.storageErr(ctx, "active", principalID, err)
	}
	return s, nil
}

// Expire ends every active session older than maxAge. A non-positive maxAge
// uses Config.MaxAge.
func (m *Manager) Expire(ctx context.Context, maxAge time.Duration) ([]Session, error) {
	if maxAge <= 0 {
		maxAge = m.cfg.MaxAge
	}

	now := m.now()
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout)
	defer cancel()

	expired, err := m.store.EndStartedBefore(sctx, now.Add(-maxAge), now)
	if err != nil {
		return nil, m.storageErr(ctx, "expire", "", err)
	}

	for _, s := range expired {
		m.audit.Record(ctx, audit.ActionSessionExpired,
			audit.WithPrincipal(s.PrincipalID),
			audit.WithSession(s.ID.String()),
			audit.WithReason(string(EndReasonExpired)),
		)
	}
	return expired, nil
}

// History returns up to limit sessions of the principal, newest first.
// A non-positive limit returns all of them.
func (m *Manager) History(ctx context.Context, principalID string, limit int) ([]Session, error) {
	limit = max(limit, 0)

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout)
	defer cancel()

	list, err := m.store.History(sctx, principalID, limit)
	if err != nil {
		return nil, m.storageErr(ctx, "history", principalID, err)
	}
	return list, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) storageErr(ctx context.Context, op, principalID string, err error) error {
	m.log.ErrorContext(ctx, "admin session storage failure",
		slog.String("op", op),
		logger.PrincipalID(principalID),
		logger.Component("adminsession"),
		logger.Error(err),
	)
	return errors.Join(ErrStorageUnavailable, err)
}
