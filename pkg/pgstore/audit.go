package pgstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/elevate/pkg/audit"
)

var (
	_ audit.Storage      = (*AuditStorage)(nil)
	_ audit.BatchStorage = (*AuditStorage)(nil)
)

var auditColumns = []string{
	"id", "principal_id", "action", "result", "session_id", "reason", "request_id", "metadata", "created_at",
}

// AuditStorage writes audit events to audit_events. Batches use COPY.
type AuditStorage struct {
	db DB
}

func NewAuditStorage(db DB) *AuditStorage {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &AuditStorage{db: db}
}

func (a *AuditStorage) Store(ctx context.Context, e audit.Event) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO audit_events (id, principal_id, action, result, session_id, reason, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		auditRow(e)...,
	)
	return err
}

func (a *AuditStorage) StoreBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := a.db.CopyFrom(ctx, pgx.Identifier{"audit_events"}, auditColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			return auditRow(events[i]), nil
		}),
	)
	return err
}

func auditRow(e audit.Event) []any {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	return []any{id, e.PrincipalID, e.Action, string(e.Result), e.SessionID, e.Reason, e.RequestID, metadata, e.CreatedAt}
}
