// Package store provides persistent storage for the router using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces composed into one Store contract:
//
//   - ServerStore: Backend server configurations and status
//   - PolicyStore: Prioritized access-control rules
//   - ApprovalStore: Human-approval requests with compare-and-set transitions
//   - TokenStore: Bearer tokens
//   - AuditStore: Append-only operation audit log
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Data Models
//
//   - BackendServer: Identity and connection recipe for one aggregated
//     MCP server (stdio command or http/sse url)
//   - PolicyRule: Scoped, prioritized, pattern-matched access-control entry
//   - ApprovalRequest: Suspended tool call awaiting a human decision
//   - Token: Opaque expiring bearer credential scoped to a client
//   - AuditEntry: One recorded operation with success/failure
//
// Composite fields (args, env, scopes, serverAccess, toolArguments) are
// JSON-encoded columns. Servers, policy rules, and approval requests carry
// epoch-millisecond timestamps; tokens carry epoch-second timestamps. The
// distinction is deliberate and preserved per entity for compatibility.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateID: Entity with the same id already exists
//   - ErrScopeIDRequired: Non-global policy rule missing its scope id
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore with a t.TempDir() path for tests with real SQLite.
package store
