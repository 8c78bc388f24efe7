// ABOUTME: Bearer token issuance, validation, revocation, and refresh
// ABOUTME: Token ids are the credential; TTLs are capped and expiry auto-revokes

package token

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/mcp-router/internal/ids"
	"github.com/2389/mcp-router/internal/store"
)

// Validation errors surfaced to callers.
var (
	ErrInvalidFormat = errors.New("invalid token format")
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// Authority issues and validates bearer tokens. The token id is the secret;
// the store acts as the credential store keyed by that id.
type Authority struct {
	store      store.Store
	defaultTTL time.Duration
	maxTTL     time.Duration
	logger     *slog.Logger
}

// NewAuthority creates a token authority with the given TTL policy.
func NewAuthority(st store.Store, defaultTTL, maxTTL time.Duration, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{
		store:      st,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		logger:     logger.With("component", "token"),
	}
}

// GenerateOptions are the caller-supplied parameters for a new token.
type GenerateOptions struct {
	ClientID     string
	Name         string
	TTLSeconds   int64 // 0 uses the default TTL
	Scopes       []string
	ServerAccess map[string]bool
}

// Generate issues a new token. A requested TTL beyond the configured maximum
// is capped with a warning rather than rejected.
func (a *Authority) Generate(ctx context.Context, opts GenerateOptions) (*store.Token, error) {
	if opts.ClientID == "" {
		return nil, errors.New("clientId is required")
	}
	if opts.Name == "" {
		return nil, errors.New("name is required")
	}

	ttl := a.defaultTTL
	if opts.TTLSeconds > 0 {
		ttl = time.Duration(opts.TTLSeconds) * time.Second
	}
	if ttl > a.maxTTL {
		a.logger.Warn("requested token ttl exceeds maximum, capping",
			"client_id", opts.ClientID,
			"requested_ttl", ttl,
			"max_ttl", a.maxTTL)
		ttl = a.maxTTL
	}

	now := time.Now().Unix()
	tok := &store.Token{
		ID:           ids.NewToken(),
		ClientID:     opts.ClientID,
		Name:         opts.Name,
		IssuedAt:     now,
		ExpiresAt:    now + int64(ttl.Seconds()),
		Scopes:       opts.Scopes,
		ServerAccess: opts.ServerAccess,
	}

	if err := a.store.CreateToken(ctx, tok); err != nil {
		a.audit(ctx, store.AuditTokenCreate, opts.ClientID, tok.ID, false, nil)
		return nil, err
	}

	a.logger.Info("token issued", "client_id", opts.ClientID, "name", opts.Name, "ttl", ttl)
	a.audit(ctx, store.AuditTokenCreate, opts.ClientID, tok.ID, true, map[string]any{
		"name":        opts.Name,
		"ttl_seconds": int64(ttl.Seconds()),
	})
	return tok, nil
}

// Validate checks a bearer credential. Malformed ids fail fast without a
// store lookup. Expired tokens are auto-revoked as a side effect: a failed
// validation for expiry removes the token from the store.
func (a *Authority) Validate(ctx context.Context, id string) (*store.Token, error) {
	if !ids.IsTokenID(id) {
		return nil, ErrInvalidFormat
	}

	tok, err := a.store.GetToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		a.audit(ctx, store.AuditTokenValidate, "", id, false, map[string]any{"reason": "not_found"})
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() > tok.ExpiresAt {
		// Auto-revoke on expired validation
		if delErr := a.store.DeleteToken(ctx, id); delErr != nil {
			a.logger.Error("auto-revoking expired token failed", "error", delErr)
		}
		a.logger.Info("expired token auto-revoked", "client_id", tok.ClientID)
		a.audit(ctx, store.AuditTokenValidate, tok.ClientID, id, false, map[string]any{"reason": "expired"})
		return nil, ErrTokenExpired
	}

	tok.LastUsedAt = time.Now().Unix()
	if err := a.store.UpdateToken(ctx, tok); err != nil {
		// Best-effort; validation itself succeeded
		a.logger.Warn("updating token last-used timestamp failed", "error", err)
	}

	a.audit(ctx, store.AuditTokenValidate, tok.ClientID, id, true, nil)
	return tok, nil
}

// Revoke removes a token from the store. Revoking an unknown token succeeds;
// revocation is idempotent.
func (a *Authority) Revoke(ctx context.Context, id string) error {
	if err := a.store.DeleteToken(ctx, id); err != nil {
		a.audit(ctx, store.AuditTokenRevoke, "", id, false, nil)
		return err
	}
	a.logger.Info("token revoked", "id_prefix", prefix(id))
	a.audit(ctx, store.AuditTokenRevoke, "", id, true, nil)
	return nil
}

// Refresh extends a live token's expiry from now by its original TTL.
// Expired or missing tokens cannot be refreshed.
func (a *Authority) Refresh(ctx context.Context, id string) (*store.Token, error) {
	if !ids.IsTokenID(id) {
		return nil, ErrInvalidFormat
	}

	tok, err := a.store.GetToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	if now > tok.ExpiresAt {
		return nil, ErrTokenExpired
	}

	// Original ttl, still subject to the configured cap
	originalTTL := tok.ExpiresAt - tok.IssuedAt
	if max := int64(a.maxTTL.Seconds()); originalTTL > max {
		originalTTL = max
	}
	tok.ExpiresAt = now + originalTTL

	if err := a.store.UpdateToken(ctx, tok); err != nil {
		a.audit(ctx, store.AuditTokenRefresh, tok.ClientID, id, false, nil)
		return nil, err
	}

	a.logger.Info("token refreshed", "client_id", tok.ClientID, "expires_at", tok.ExpiresAt)
	a.audit(ctx, store.AuditTokenRefresh, tok.ClientID, id, true, nil)
	return tok, nil
}

// List returns the tokens issued to a client. Listing without a client
// filter is deliberately disabled: an empty clientId yields an empty list
// and a warning, never the full token table.
func (a *Authority) List(ctx context.Context, clientID string) ([]*store.Token, error) {
	if clientID == "" {
		a.logger.Warn("token listing without a clientId filter is disabled")
		return nil, nil
	}
	return a.store.ListTokensByClient(ctx, clientID)
}

// UpdateServerAccess merges the given serverId entries into the token's
// access map. Existing entries not named in the patch are preserved.
func (a *Authority) UpdateServerAccess(ctx context.Context, id string, patch map[string]bool) (*store.Token, error) {
	if !ids.IsTokenID(id) {
		return nil, ErrInvalidFormat
	}

	tok, err := a.store.GetToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if tok.ServerAccess == nil {
		tok.ServerAccess = make(map[string]bool, len(patch))
	}
	for serverID, allowed := range patch {
		tok.ServerAccess[serverID] = allowed
	}

	if err := a.store.UpdateToken(ctx, tok); err != nil {
		a.audit(ctx, store.AuditTokenUpdateAccess, tok.ClientID, id, false, nil)
		return nil, err
	}

	a.audit(ctx, store.AuditTokenUpdateAccess, tok.ClientID, id, true, map[string]any{"patched": len(patch)})
	return tok, nil
}

// audit records an audit entry. Audit failures are logged, never propagated:
// the token operation they describe must not roll back.
func (a *Authority) audit(ctx context.Context, action store.AuditAction, clientID, tokenID string, success bool, detail map[string]any) {
	err := a.store.AppendAudit(ctx, &store.AuditEntry{
		Action:     action,
		ClientID:   clientID,
		TargetType: "token",
		TargetID:   prefix(tokenID),
		Success:    success,
		Detail:     detail,
	})
	if err != nil {
		a.logger.Error("appending token audit entry failed", "action", action, "error", err)
	}
}

// prefix shortens a token id for logs and audit rows so the credential
// itself is never written out.
func prefix(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}
