// Package store provides persistent storage for the gateway using SQLite.
//
// The gateway keeps no event history; the only durable state is the set of
// principals that can hold issued tokens and an audit trail of who issued or
// revoked them.
//
//   - PrincipalStore: principals with role, scopes, and active/revoked status
//   - AuditStore: append-only log of token administration
//
// SQLiteStore implements both on a single modernc.org/sqlite database
// opened in WAL mode. The schema is created on open and additive
// migrations are applied idempotently.
package store
