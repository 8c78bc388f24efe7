// Package auth provides authentication for the mcp-router admin API.
//
// # Two credential kinds
//
// The router distinguishes two unrelated credentials:
//
//   - Admin sessions: short-lived JWTs (HS256, signed with the configured
//     jwt_secret) minted after a bcrypt-verified password login. They gate
//     the /api admin surface only.
//
//   - Router tokens: opaque mcpr_-prefixed bearer tokens issued by the
//     token authority. MCP clients present them on the /mcp and /sse
//     facade endpoints, and the call pipeline validates them.
//
// This package implements only the first kind; router tokens live in
// internal/token.
//
// # Login flow
//
//	authn := auth.NewAuthenticator(passwordHash, sessions)
//	session, err := authn.Login(password)
//
// Any failure (no hash configured, empty password, bcrypt mismatch)
// collapses to ErrBadCredentials.
//
// # Middleware
//
// RequireSession wraps admin handlers and puts the verified subject on the
// request context, retrievable with SubjectFromContext.
package auth
