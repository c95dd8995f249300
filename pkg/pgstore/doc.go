// Package pgstore implements the enrollment, replay, admin session and audit
// stores on PostgreSQL.
//
// Secrets are sealed with totp.Sealer before they are written, using the
// principal id as additional data so a ciphertext cannot be moved between rows.
// Every read-modify-write runs either as one conditional statement or inside a
// transaction holding a per-principal advisory lock. The partial unique index
// on admin_sessions(principal_id) WHERE ended_at IS NULL backs the single
// active session rule at the schema level.
//
// The schema lives in internal/db/migrations and is applied with pg.Migrate.
package pgstore
