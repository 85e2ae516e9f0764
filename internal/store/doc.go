// Package store provides persistent storage for berth using SQLite.
//
// # Architecture
//
// The Store interface covers the three durable collections that make up the
// permission state, plus the audit log:
//
//   - servers: logical server names mapped to container references
//   - admins: identities that bypass all capability checks
//   - grants: (identity, scope, capability) rows; scope is a server name or
//     ScopeAll ("*")
//   - audit_log: append-only record of authorization decisions and command
//     executions
//
// SQLiteStore implements the interface using modernc.org/sqlite with WAL
// mode and automatic schema creation.
//
// # Durability
//
// Every mutation runs in its own SQLite transaction: once AddGrant,
// RemoveGrant, or AppendAudit returns, the change is on disk and a crash
// cannot lose it or leave it half-applied. The on-disk SQLite format is a
// serialization detail; callers only see the typed model.
//
// # Layering
//
// The store is deliberately policy-free. HasGrant answers exact-row
// questions only; admin bypass, fleet-wide (ScopeAll) widening, and
// grant authorization rules live in the perm package.
package store
