package pgstore

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/elevate/pkg/enrollment"
	"github.com/dmitrymomot/elevate/pkg/pg"
	"github.com/dmitrymomot/elevate/pkg/replay"
	"github.com/dmitrymomot/elevate/pkg/totp"
)

var (
	_ enrollment.Store = (*Secrets)(nil)
	_ replay.Store     = (*Secrets)(nil)
)

// Secrets stores TOTP secrets and their consumption records in mfa_secrets.
type Secrets struct {
	db     DB
	sealer *totp.Sealer
}

// NewSecrets creates a secret store. Secrets are sealed with sealer at rest.
func NewSecrets(db DB, sealer *totp.Sealer) *Secrets {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	if sealer == nil {
		panic("pgstore: sealer cannot be nil")
	}
	return &Secrets{db: db, sealer: sealer}
}

func (s *Secrets) SavePending(ctx context.Context, secret enrollment.Secret) error {
	if secret.PrincipalID == "" {
		return enrollment.ErrMissingPrincipal
	}

	sealed, err := s.sealer.Seal(secret.Key, secret.PrincipalID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO mfa_secrets (principal_id, state, secret_ciphertext, last_counter, created_at)
		VALUES ($1, 'pending', $2, 0, $3)
		ON CONFLICT (principal_id, state) DO UPDATE
		SET secret_ciphertext = EXCLUDED.secret_ciphertext,
		    last_counter = 0,
		    created_at = EXCLUDED.created_at`,
		secret.PrincipalID, sealed, secret.CreatedAt,
	)
	return err
}

func (s *Secrets) Pending(ctx context.Context, principalID string) (enrollment.Secret, error) {
	return s.get(ctx, principalID, enrollment.StatePending)
}

func (s *Secrets) Confirmed(ctx context.Context, principalID string) (enrollment.Secret, error) {
	return s.get(ctx, principalID, enrollment.StateConfirmed)
}

func (s *Secrets) get(ctx context.Context, principalID string, state enrollment.State) (enrollment.Secret, error) {
	var (
		sealed string
		secret = enrollment.Secret{PrincipalID: principalID, State: state}
	)

	err := s.db.QueryRow(ctx, `
		SELECT secret_ciphertext, last_counter, created_at, confirmed_at
		FROM mfa_secrets
		WHERE principal_id = $1 AND state = $2`,
		principalID, string(state),
	).Scan(&sealed, &secret.LastCounter, &secret.CreatedAt, &secret.ConfirmedAt)
	if pg.IsNotFoundError(err) {
		return enrollment.Secret{}, enrollment.ErrSecretNotFound
	}
	if err != nil {
		return enrollment.Secret{}, err
	}

	if secret.Key, err = s.sealer.Open(sealed, principalID); err != nil {
		return enrollment.Secret{}, err
	}
	return secret, nil
}

// Promote replaces the confirmed secret with the pending one in a single transaction.
func (s *Secrets) Promote(ctx context.Context, secret enrollment.Secret) error {
	confirmedAt := time.Now()
	if secret.ConfirmedAt != nil {
		confirmedAt = *secret.ConfirmedAt
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockPrincipal(ctx, tx, "mfa_secrets", secret.PrincipalID); err != nil {
			return err
		}

		var sealed string
		err := tx.QueryRow(ctx, `
			SELECT secret_ciphertext FROM mfa_secrets
			WHERE principal_id = $1 AND state = 'pending'`,
			secret.PrincipalID,
		).Scan(&sealed)
		if pg.IsNotFoundError(err) {
			return enrollment.ErrSecretNotFound
		}
		if err != nil {
			return err
		}

		key, err := s.sealer.Open(sealed, secret.PrincipalID)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret.Key)) != 1 {
			return enrollment.ErrSecretNotFound
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM mfa_secrets WHERE principal_id = $1 AND state = 'confirmed'`,
			secret.PrincipalID,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE mfa_secrets
			SET state = 'confirmed', last_counter = $2, confirmed_at = $3
			WHERE principal_id = $1 AND state = 'pending'`,
			secret.PrincipalID, secret.LastCounter, confirmedAt,
		)
		return err
	})
}

func (s *Secrets) Delete(ctx context.Context, principalID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM mfa_secrets WHERE principal_id = $1`, principalID)
	return err
}

// Advance implements replay.Store with a conditional update, so the comparison
// and the write are one statement.
func (s *Secrets) Advance(ctx context.Context, principalID string, counter int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE mfa_secrets SET last_counter = $2
		WHERE principal_id = $1 AND state = 'confirmed' AND last_counter < $2`,
		principalID, counter,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM mfa_secrets WHERE principal_id = $1 AND state = 'confirmed')`,
		principalID,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, replay.ErrUnknownPrincipal
	}
	return false, nil
}
