package enrollment

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/elevate/pkg/audit"
	"github.com/dmitrymomot/elevate/pkg/logger"
	"github.com/dmitrymomot/elevate/pkg/qrcode"
	"github.com/dmitrymomot/elevate/pkg/replay"
	"github.com/dmitrymomot/elevate/pkg/totp"
)

const DefaultStorageTimeout = 3 * time.Second

// Enrollment is what the principal needs to set up an authenticator app.
// Secret is shown once and must not be logged.
type Enrollment struct {
	Secret string
	URI    string
	QRCode string // PNG data URI, empty when QR rendering is disabled
}

// Status summarizes the principal's second-factor state.
type Status struct {
	Enrolled    bool
	Pending     bool
	ConfirmedAt *time.Time
}

// GenerateSecret returns a fresh 160-bit base32 secret from crypto/rand.
func GenerateSecret() (string, error) {
	return totp.GenerateSecretKey(rand.Reader)
}

// BuildEnrollmentURI renders otpauth://totp/<issuer>:<label>?secret=<base32>&issuer=<issuer>.
func BuildEnrollmentURI(label, secret, issuer string) (string, error) {
	return totp.URI(totp.Params{Secret: secret, AccountName: label, Issuer: issuer})
}

// Provisioner runs the enrollment protocol on top of a Store.
type Provisioner struct {
	store   Store
	issuer  string
	cfg     totp.Config
	guard   *replay.Guard
	random  io.Reader
	now     func() time.Time
	timeout time.Duration
	qrSize  int
	log     *slog.Logger
	audit   audit.Recorder
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithGuard seeds the given replay guard after confirmation. Needed when the guard
// keeps consumption records outside the enrollment Store, e.g. in Redis.
func WithGuard(g *replay.Guard) Option {
	return func(p *Provisioner) { p.guard = g }
}

func WithTOTPConfig(cfg totp.Config) Option {
	return func(p *Provisioner) { p.cfg = cfg.WithDefaults() }
}

// WithRandom replaces crypto/rand as the secret source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(p *Provisioner) {
		if r != nil {
			p.random = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) {
		if now != nil {
			p.now = now
		}
	}
}

func WithStorageTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.log = l
		}
	}
}

func WithAuditor(r audit.Recorder) Option {
	return func(p *Provisioner) {
		if r != nil {
			p.audit = r
		}
	}
}

// WithQRSize sets the QR code edge in pixels. Zero disables QR rendering.
func WithQRSize(px int) Option {
	return func(p *Provisioner) {
		if px >= 0 {
			p.qrSize = px
		}
	}
}

// NewProvisioner creates a Provisioner. issuer is shown in authenticator apps.
func NewProvisioner(store Store, issuer string, opts ...Option) *Provisioner {
	if store == nil {
		panic("enrollment: store cannot be nil")
	}
	if strings.TrimSpace(issuer) == "" {
		panic("enrollment: issuer cannot be empty")
	}

	p := &Provisioner{
		store:   store,
		issuer:  issuer,
		cfg:     totp.DefaultConfig(),
		random:  rand.Reader,
		now:     time.Now,
		timeout: DefaultStorageTimeout,
		qrSize:  qrcode.DefaultSize,
		log:     slog.Default(),
		audit:   audit.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateSecret returns a fresh secret from the configured random source.
func (p *Provisioner) GenerateSecret() (string, error) {
	return totp.GenerateSecretKey(p.random)
}

// BuildEnrollmentURI renders the provisioning URI with the provisioner's issuer
// and any non-default TOTP parameters.
func (p *Provisioner) BuildEnrollmentURI(label, secret string) (string, error) {
	return totp.URI(totp.Params{
		Secret:      secret,
		AccountName: label,
		Issuer:      p.issuer,
		Algorithm:   p.cfg.Algorithm,
		Digits:      p.cfg.Digits,
		Period:      p.cfg.Period,
	})
}

// Begin issues a new pending secret for principalID. Any earlier pending secret is
// replaced. A confirmed secret stays active until the new one is confirmed.
// label defaults to principalID.
func (p *Provisioner) Begin(ctx context.Context, principalID, label string) (Enrollment, error) {
	if principalID == "" {
		return Enrollment{}, ErrMissingPrincipal
	}
	if strings.TrimSpace(label) == "" {
		label = principalID
	}

	key, err := p.GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}
	uri, err := p.BuildEnrollmentURI(label, key)
	if err != nil {
		return Enrollment{}, err
	}

	var qr string
	if p.qrSize > 0 {
		if qr, err = qrcode.DataURI(uri, qrcode.WithSize(p.qrSize)); err != nil {
			return Enrollment{}, err
		}
	}

	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.store.SavePending(sctx, Secret{
		PrincipalID: principalID,
		Key:         key,
		State:       StatePending,
		CreatedAt:   p.now(),
	})
	if err != nil {
		return Enrollment{}, p.storageErr(ctx, "save pending secret", principalID, err)
	}

	p.audit.Record(ctx, audit.ActionEnrollmentStarted, audit.WithPrincipal(principalID))

	return Enrollment{Secret: key, URI: uri, QRCode: qr}, nil
}

// Confirm demonstrates possession of the pending secret. On success the pending
// secret becomes the confirmed one and the matched time step is consumed.
//
// A wrong code returns ErrEnrollmentFailed and leaves the pending secret in place.
// When nothing is pending but a confirmed secret exists, an already consumed code
// returns ErrReplayRejected and a fresh one ErrAlreadyConfirmed. Neither mutates state.
//
// If the confirmation is stored but seeding the replay guard fails, the secret is
// returned together with an ErrStorageUnavailable error.
func (p *Provisioner) Confirm(ctx context.Context, principalID, code string, t time.Time) (Secret, error) {
	if principalID == "" {
		return Secret{}, ErrMissingPrincipal
	}

	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pending, err := p.store.Pending(sctx, principalID)
	if errors.Is(err, ErrSecretNotFound) {
		return Secret{}, p.confirmAgain(ctx, principalID, code, t)
	}
	if err != nil {
		return Secret{}, p.storageErr(ctx, "load pending secret", principalID, err)
	}

	confirmed, err := ConfirmSecret(pending, code, t, totp.WithConfig(p.cfg))
	if err != nil {
		if errors.Is(err, ErrEnrollmentFailed) {
			p.audit.Record(ctx, audit.ActionEnrollmentFailed,
				audit.WithPrincipal(principalID),
				audit.WithResult(audit.ResultFailure),
				audit.WithReason("invalid_code"),
			)
		}
		return Secret{}, err
	}

	if err := p.store.Promote(sctx, confirmed); err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			// Lost a race with a concurrent confirmation or rotation.
			return Secret{}, p.confirmAgain(ctx, principalID, code, t)
		}
		return Secret{}, p.storageErr(ctx, "promote secret", principalID, err)
	}

	p.audit.Record(ctx, audit.ActionEnrollmentConfirmed, audit.WithPrincipal(principalID))
	p.log.InfoContext(ctx, "second factor enrolled",
		logger.PrincipalID(principalID),
		logger.Component("enrollment"),
	)

	if p.guard != nil {
		if err := p.guard.Record(ctx, principalID, confirmed.LastCounter); err != nil {
			return confirmed, p.storageErr(ctx, "seed replay guard", principalID, err)
		}
	}

	return confirmed, nil
}

// confirmAgain handles a confirmation attempt when no pending secret matches.
func (p *Provisioner) confirmAgain(ctx context.Context, principalID, code string, t time.Time) error {
	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	current, err := p.store.Confirmed(sctx, principalID)
	if errors.Is(err, ErrSecretNotFound) {
		return ErrNoPendingEnrollment
	}
	if err != nil {
		return p.storageErr(ctx, "load confirmed secret", principalID, err)
	}

	res, err := totp.Verify(current.Key, code, t, totp.WithConfig(p.cfg))
	if err != nil {
		return err
	}
	if !res.Valid {
		return ErrEnrollmentFailed
	}
	replayed := res.Counter <= current.LastCounter
	if !replayed && p.guard != nil {
		// Logins may advance only the guard's record.
		if replayed, err = p.guard.Consumed(ctx, principalID, res.Counter); err != nil {
			return p.storageErr(ctx, "read replay record", principalID, err)
		}
	}
	if replayed {
		p.audit.Record(ctx, audit.ActionReplayRejected,
			audit.WithPrincipal(principalID),
			audit.WithResult(audit.ResultFailure),
			audit.WithReason("enrollment_confirmation"),
		)
		return ErrReplayRejected
	}
	return ErrAlreadyConfirmed
}

// Status reports whether the principal has a confirmed and/or pending secret.
func (p *Provisioner) Status(ctx context.Context, principalID string) (Status, error) {
	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var st Status
	confirmed, err := p.store.Confirmed(sctx, principalID)
	switch {
	case err == nil:
		st.Enrolled = true
		st.ConfirmedAt = confirmed.ConfirmedAt
	case !errors.Is(err, ErrSecretNotFound):
		return Status{}, p.storageErr(ctx, "load confirmed secret", principalID, err)
	}

	_, err = p.store.Pending(sctx, principalID)
	switch {
	case err == nil:
		st.Pending = true
	case !errors.Is(err, ErrSecretNotFound):
		return Status{}, p.storageErr(ctx, "load pending secret", principalID, err)
	}

	return st, nil
}

// Disable removes every secret of the principal. The next verification reports
// the principal as not enrolled.
func (p *Provisioner) Disable(ctx context.Context, principalID string) error {
	if principalID == "" {
		return ErrMissingPrincipal
	}

	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.Delete(sctx, principalID); err != nil {
		return p.storageErr(ctx, "delete secrets", principalID, err)
	}

	p.audit.Record(ctx, audit.ActionEnrollmentDisabled, audit.WithPrincipal(principalID))
	return nil
}

func (p *Provisioner) storageErr(ctx context.Context, op, principalID string, err error) error {
	p.log.ErrorContext(ctx, "enrollment storage failure",
		slog.String("op", op),
		logger.PrincipalID(principalID),
		logger.Component("enrollment"),
		logger.Error(err),
	)
	return errors.Join(ErrStorageUnavailable, err)
}
