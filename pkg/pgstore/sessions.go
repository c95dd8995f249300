package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/pg"
)

var _ adminsession.Store = (*Sessions)(nil)

const sessionColumns = `id, principal_id, started_at, ended_at, end_reason, reason, scope`

// Sessions stores admin sessions in admin_sessions.
type Sessions struct {
	db DB
}

func NewSessions(db DB) *Sessions {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &Sessions{db: db}
}

// Open supersedes the active session and inserts s in one transaction under the
// principal's advisory lock.
func (s *Sessions) Open(ctx context.Context, session adminsession.Session) (*adminsession.Session, error) {
	if session.PrincipalID == "" {
		return nil, adminsession.ErrMissingPrincipal
	}

	var superseded *adminsession.Session
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		superseded = nil
		if err := lockPrincipal(ctx, tx, "admin_sessions", session.PrincipalID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			UPDATE admin_sessions
			SET ended_at = $2, end_reason = $3
			WHERE principal_id = $1 AND ended_at IS NULL
			RETURNING `+sessionColumns,
			session.PrincipalID, session.StartedAt, string(adminsession.EndReasonSuperseded),
		)
		if err != nil {
			return err
		}
		ended, err := pgx.CollectRows(rows, scanSession)
		if err != nil {
			return err
		}
		if len(ended) > 0 {
			superseded = &ended[0]
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO admin_sessions (id, principal_id, started_at, reason, scope)
			VALUES ($1, $2, $3, $4, $5)`,
			session.ID, session.PrincipalID, session.StartedAt, session.Reason, session.Scope,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

func (s *Sessions) End(ctx context.Context, principalID string, at time.Time, reason adminsession.EndReason) (*adminsession.Session, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE admin_sessions
		SET ended_at = $2, end_reason = $3
		WHERE principal_id = $1 AND ended_at IS NULL
		RETURNING `+sessionColumns,
		principalID, at, string(reason),
	)
	if err != nil {
		return nil, err
	}

	ended, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if pg.IsNotFoundError(err) {
		return nil, adminsession.ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &ended, nil
}

func (s *Sessions) Active(ctx context.Context, principalID string) (*adminsession.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM admin_sessions
		WHERE principal_id = $1 AND ended_at IS NULL`,
		principalID,
	)
	if err != nil {
		return nil, err
	}

	active, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if pg.IsNotFoundError(err) {
		return nil, adminsession.ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &active, nil
}

func (s *Sessions) EndStartedBefore(ctx context.Context, cutoff, at time.Time) ([]adminsession.Session, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE admin_sessions
		SET ended_at = $2, end_reason = $3
		WHERE ended_at IS NULL AND started_at < $1
		RETURNING `+sessionColumns,
		cutoff, at, string(adminsession.EndReasonExpired),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSession)
}

func (s *Sessions) History(ctx context.Context, principalID string, limit int) ([]adminsession.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM admin_sessions
		WHERE principal_id = $1
		ORDER BY started_at DESC, ended_at DESC NULLS FIRST
		LIMIT NULLIF($2::int, 0)`,
		principalID, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSession)
}

func scanSession(row pgx.CollectableRow) (adminsession.Session, error) {
	var (
		s         adminsession.Session
		endReason *string
	)
	if err := row.Scan(&s.ID, &s.PrincipalID, &s.StartedAt, &s.EndedAt, &endReason, &s.Reason, &s.Scope); err != nil {
		return adminsession.Session{}, err
	}
	if endReason != nil {
		s.EndReason = adminsession.EndReason(*endReason)
	}
	return s, nil
}
