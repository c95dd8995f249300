// Package elevate documents the module layout. It has no code of its own.
//
// The module provides TOTP second-factor verification with replay protection
// and privileged admin sessions gated by it:
//
//   - pkg/totp: RFC 4226/6238 codes, provisioning URIs, secret sealing
//   - pkg/enrollment: issuing and confirming secrets
//   - pkg/replay: single-use consumption of time steps
//   - pkg/adminsession: at most one active admin session per principal
//   - pkg/audit: asynchronous audit trail
//   - svc/elevation: verification and elevation entry point
//
// Storage backends live in pkg/pgstore (PostgreSQL), replay.RedisStore and
// pkg/mongo (audit events). cmd/totpctl and cmd/sessionsweeper are the binaries.
package elevate
