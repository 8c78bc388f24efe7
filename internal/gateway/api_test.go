// ABOUTME: HTTP-level tests for the admin API
// ABOUTME: Exercises login, server CRUD, policies, tokens, and approvals end to end

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-router/internal/auth"
	"github.com/2389/mcp-router/internal/config"
)

const testAdminPassword = "correct horse battery staple"

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	hash, err := auth.HashPassword(testAdminPassword)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "router.db")
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Auth.AdminPasswordHash = hash
	cfg.Tokens.DefaultTTL = 24 * time.Hour
	cfg.Tokens.MaxTTL = 30 * 24 * time.Hour
	cfg.Approvals.TTL = 5 * time.Minute
	cfg.Approvals.SweepInterval = time.Minute
	cfg.Backends.StartTimeout = 5 * time.Second
	cfg.Backends.StopGrace = time.Second
	cfg.Backends.CallTimeout = 10 * time.Second
	cfg.Backends.HealthInterval = time.Minute

	g, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { g.store.Close() })

	mux := http.NewServeMux()
	g.registerRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return g, srv
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/api/login", "", LoginRequest{Password: testAdminPassword})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, session string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, srv := newTestGateway(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/login", "", LoginRequest{Password: "wrong"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAPIRequiresSession(t *testing.T) {
	_, srv := newTestGateway(t)
	resp := doJSON(t, srv, http.MethodGet, "/api/servers", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	_, srv := newTestGateway(t)
	for _, path := range []string{"/health", "/health/ready"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestServerCRUD(t *testing.T) {
	_, srv := newTestGateway(t)
	session := login(t, srv)

	// Invalid definition is rejected.
	resp := doJSON(t, srv, http.MethodPost, "/api/servers", session, ServerRequest{Name: "bad", Transport: "stdio"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/servers", session, ServerRequest{
		Name:      "files",
		Transport: "stdio",
		Command:   "files-mcp",
		Args:      []string{"--root", "/data"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[ServerResponse](t, resp)
	assert.Equal(t, "stopped", created.Status)
	require.NotEmpty(t, created.ID)

	resp = doJSON(t, srv, http.MethodGet, "/api/servers/"+created.ID, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[ServerResponse](t, resp)
	assert.Equal(t, "files", got.Name)
	assert.Equal(t, []string{"--root", "/data"}, got.Args)

	resp = doJSON(t, srv, http.MethodGet, "/api/servers", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]ServerResponse](t, resp)
	assert.Len(t, list, 1)

	resp = doJSON(t, srv, http.MethodPut, "/api/servers/"+created.ID, session, ServerRequest{
		Name:      "files",
		Transport: "stdio",
		Command:   "files-mcp-v2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[ServerResponse](t, resp)
	assert.Equal(t, "files-mcp-v2", updated.Command)

	resp = doJSON(t, srv, http.MethodDelete, "/api/servers/"+created.ID, session, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/api/servers/"+created.ID, session, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerPermissionsRoundTrip(t *testing.T) {
	_, srv := newTestGateway(t)
	session := login(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/servers", session, ServerRequest{
		Name:        "files",
		Transport:   "stdio",
		Command:     "files-mcp",
		Permissions: map[string]bool{"delete_file": false},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[ServerResponse](t, resp)
	assert.Equal(t, map[string]bool{"delete_file": false}, created.Permissions)

	// Updating carries the overrides through instead of dropping them.
	resp = doJSON(t, srv, http.MethodPut, "/api/servers/"+created.ID, session, ServerRequest{
		Name:        "files",
		Transport:   "stdio",
		Command:     "files-mcp-v2",
		Permissions: map[string]bool{"delete_file": false, "write_file": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[ServerResponse](t, resp)
	assert.Equal(t, map[string]bool{"delete_file": false, "write_file": true}, updated.Permissions)
}

func TestStartBrokenServerReportsErrorStatus(t *testing.T) {
	_, srv := newTestGateway(t)
	session := login(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/servers", session, ServerRequest{
		Name:      "broken",
		Transport: "stdio",
		Command:   "/nonexistent/mcp-binary",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[ServerResponse](t, resp)

	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/servers/%s/start", created.ID), session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	started := decodeBody[ServerResponse](t, resp)
	assert.Equal(t, "error", started.Status)
	assert.NotEmpty(t, started.LastError)
}

func TestPolicyCRUD(t *testing.T) {
	_, srv := newTestGateway(t)
	session := login(t, srv)

	priority := 100
	resp := doJSON(t, srv, http.MethodPost, "/api/policies", session, RuleRequest{
		Name:         "deny dangerous tools",
		Scope:        "global",
		ResourceType: "tool",
		Pattern:      "dangerous-*",
		Action:       "deny",
		Priority:     &priority,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rule := decodeBody[RuleResponse](t, resp)
	assert.True(t, rule.Enabled)
	assert.Equal(t, 100, rule.Priority)

	// Missing pattern is rejected.
	resp = doJSON(t, srv, http.MethodPost, "/api/policies", session, RuleRequest{
		Name: "bad", Scope: "global", ResourceType: "tool", Action: "deny",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	disabled := false
	resp = doJSON(t, srv, http.MethodPut, "/api/policies/"+rule.ID, session, RuleRequest{Enabled: &disabled})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[RuleResponse](t, resp)
	assert.False(t, updated.Enabled)
	assert.Equal(t, "dangerous-*", updated.Pattern)

	resp = doJSON(t, srv, http.MethodDelete, "/api/policies/"+rule.ID, session, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/api/policies/"+rule.ID, session, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTokenLifecycleOverAPI(t *testing.T) {
	_, srv := newTestGateway(t)
	session := login(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/tokens", session, TokenRequest{
		ClientID: "agent-7",
		Name:     "agent seven",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tok := decodeBody[TokenResponse](t, resp)
	assert.Contains(t, tok.ID, "mcpr_")

	resp = doJSON(t, srv, http.MethodGet, "/api/tokens?client_id=agent-7", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]TokenResponse](t, resp)
	assert.Len(t, list, 1)

	resp = doJSON(t, srv, http.MethodPost, "/api/tokens/"+tok.ID+"/refresh", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decodeBody[TokenResponse](t, resp)
	assert.GreaterOrEqual(t, refreshed.ExpiresAt, tok.ExpiresAt)

	resp = doJSON(t, srv, http.MethodPut, "/api/tokens/"+tok.ID+"/access", session, map[string]any{
		"serverAccess": map[string]bool{"srv-1": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decodeBody[TokenResponse](t, resp)
	assert.True(t, patched.ServerAccess["srv-1"])

	resp = doJSON(t, srv, http.MethodDelete, "/api/tokens/"+tok.ID, session, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Listing without a client filter is disabled and returns empty.
	resp = doJSON(t, srv, http.MethodGet, "/api/tokens", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decodeBody[[]TokenResponse](t, resp)
	assert.Empty(t, all)
}

func TestApprovalRespondOverAPI(t *testing.T) {
	g, srv := newTestGateway(t)
	session := login(t, srv)

	req, err := g.approvals.Create(t.Context(), "agent-7", "srv-1", "deploy", map[string]any{"env": "prod"}, "", 0)
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodGet, "/api/approvals", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decodeBody[[]ApprovalResponse](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, "deploy", pending[0].ToolName)

	resp = doJSON(t, srv, http.MethodPost, "/api/approvals/"+req.ID+"/respond", session, RespondRequest{
		Approved: true,
		Note:     "looks fine",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolved := decodeBody[ApprovalResponse](t, resp)
	assert.Equal(t, "approved", resolved.Status)
	assert.Equal(t, auth.AdminSubject, resolved.RespondedBy)

	// Second response conflicts; the first decision stands.
	resp = doJSON(t, srv, http.MethodPost, "/api/approvals/"+req.ID+"/respond", session, RespondRequest{Approved: false})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The decision left an audit trail.
	resp = doJSON(t, srv, http.MethodGet, "/api/audit?action=approval.respond", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeBody[[]AuditEntryResponse](t, resp)
	require.NotEmpty(t, entries)
	assert.Equal(t, req.ID, entries[0].TargetID)
	assert.Equal(t, true, entries[0].Detail["approved"])
}

func TestAuditOverAPI(t *testing.T) {
	_, srv := newTestGateway(t)
	session := login(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/tokens", session, TokenRequest{ClientID: "c1", Name: "n1"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/api/audit?action=token.create", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeBody[[]AuditEntryResponse](t, resp)
	require.NotEmpty(t, entries)
	assert.Equal(t, "token.create", entries[0].Action)
}
