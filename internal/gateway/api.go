// ABOUTME: Admin HTTP API handlers for servers, policies, approvals, tokens, and audit
// ABOUTME: JSON request/response types and routing for the /api endpoints

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/mcp-router/internal/auth"
	"github.com/2389/mcp-router/internal/policy"
	"github.com/2389/mcp-router/internal/store"
	"github.com/2389/mcp-router/internal/supervisor"
	"github.com/2389/mcp-router/internal/token"
)

// LoginRequest is the JSON request body for POST /api/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the admin session token.
type LoginResponse struct {
	Token string `json:"token"`
}

// ServerRequest is the JSON body for creating or updating a backend server.
type ServerRequest struct {
	Name        string            `json:"name"`
	Transport   string            `json:"transport"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
	Permissions map[string]bool   `json:"permissions,omitempty"`
}

// ServerResponse is the JSON representation of a backend server.
// Timestamps are Unix epoch milliseconds.
type ServerResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Transport   string            `json:"transport"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
	Permissions map[string]bool   `json:"permissions,omitempty"`
	Status      string            `json:"status"`
	LastError   string            `json:"lastError,omitempty"`
	CreatedAt   int64             `json:"createdAt"`
	UpdatedAt   int64             `json:"updatedAt"`
}

// RuleRequest is the JSON body for creating or updating a policy rule.
type RuleRequest struct {
	Name         string `json:"name"`
	Scope        string `json:"scope"`
	ScopeID      string `json:"scopeId,omitempty"`
	ResourceType string `json:"resourceType"`
	Pattern      string `json:"pattern"`
	Action       string `json:"action"`
	Priority     *int   `json:"priority,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// RuleResponse is the JSON representation of a policy rule.
type RuleResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Scope        string `json:"scope"`
	ScopeID      string `json:"scopeId,omitempty"`
	ResourceType string `json:"resourceType"`
	Pattern      string `json:"pattern"`
	Action       string `json:"action"`
	Priority     int    `json:"priority"`
	Enabled      bool   `json:"enabled"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// ApprovalResponse is the JSON representation of an approval request.
type ApprovalResponse struct {
	ID            string         `json:"id"`
	ClientID      string         `json:"clientId"`
	ServerID      string         `json:"serverId"`
	ToolName      string         `json:"toolName"`
	ToolArguments map[string]any `json:"toolArguments,omitempty"`
	PolicyRuleID  string         `json:"policyRuleId,omitempty"`
	Status        string         `json:"status"`
	RequestedAt   int64          `json:"requestedAt"`
	ExpiresAt     int64          `json:"expiresAt"`
	RespondedAt   int64          `json:"respondedAt,omitempty"`
	RespondedBy   string         `json:"respondedBy,omitempty"`
	Note          string         `json:"note,omitempty"`
}

// RespondRequest is the JSON body for POST /api/approvals/{id}/respond.
type RespondRequest struct {
	Approved    bool   `json:"approved"`
	RespondedBy string `json:"respondedBy"`
	Note        string `json:"note,omitempty"`
}

// TokenRequest is the JSON body for POST /api/tokens.
type TokenRequest struct {
	ClientID     string          `json:"clientId"`
	Name         string          `json:"name"`
	TTLSeconds   int64           `json:"ttlSeconds,omitempty"`
	Scopes       []string        `json:"scopes,omitempty"`
	ServerAccess map[string]bool `json:"serverAccess,omitempty"`
}

// TokenResponse is the JSON representation of a router token. Unlike the
// other entities, token timestamps are Unix epoch seconds.
type TokenResponse struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"clientId"`
	Name         string          `json:"name"`
	Scopes       []string        `json:"scopes,omitempty"`
	ServerAccess map[string]bool `json:"serverAccess,omitempty"`
	CreatedAt    int64           `json:"createdAt"`
	ExpiresAt    int64           `json:"expiresAt"`
	LastUsedAt   int64           `json:"lastUsedAt,omitempty"`
}

// AuditEntryResponse is the JSON representation of one audit entry.
type AuditEntryResponse struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ClientID   string         `json:"clientId,omitempty"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Success    bool           `json:"success"`
	Timestamp  int64          `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sessionToken, err := g.authn.Login(req.Password)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	g.writeJSON(w, http.StatusOK, LoginResponse{Token: sessionToken})
}

func (g *Gateway) handleServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		servers, err := g.backends.ListServers(r.Context())
		if err != nil {
			g.sendJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]ServerResponse, 0, len(servers))
		for _, srv := range servers {
			out = append(out, serverToResponse(srv))
		}
		g.writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req ServerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		srv, err := g.backends.AddServer(r.Context(), &store.BackendServer{
			Name:        req.Name,
			Transport:   store.Transport(req.Transport),
			Command:     req.Command,
			Args:        req.Args,
			Env:         req.Env,
			URL:         req.URL,
			Permissions: req.Permissions,
		})
		if err != nil {
			g.sendServerError(w, err)
			return
		}
		g.writeJSON(w, http.StatusCreated, serverToResponse(srv))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleServerRoutes dispatches /api/servers/{id} and its subresources:
// start, stop, restart, tools.
func (g *Gateway) handleServerRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/servers/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "server id required")
		return
	}

	switch action {
	case "":
		g.handleServerByID(w, r, id)
	case "start", "stop", "restart":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var err error
		switch action {
		case "start":
			err = g.backends.StartServer(r.Context(), id)
		case "stop":
			err = g.backends.StopServer(r.Context(), id)
		case "restart":
			err = g.backends.RestartServer(r.Context(), id)
		}
		if err != nil {
			g.sendServerError(w, err)
			return
		}
		srv, err := g.backends.GetServer(r.Context(), id)
		if err != nil {
			g.sendServerError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, serverToResponse(srv))
	case "tools":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		tools, err := g.backends.Tools(id)
		if err != nil {
			g.sendServerError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, tools)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *Gateway) handleServerByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		srv, err := g.backends.GetServer(r.Context(), id)
		if err != nil {
			g.sendServerError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, serverToResponse(srv))

	case http.MethodPut:
		var req ServerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		srv := &store.BackendServer{
			ID:          id,
			Name:        req.Name,
			Transport:   store.Transport(req.Transport),
			Command:     req.Command,
			Args:        req.Args,
			Env:         req.Env,
			URL:         req.URL,
			Permissions: req.Permissions,
		}
		if err := g.backends.UpdateServer(r.Context(), srv); err != nil {
			g.sendServerError(w, err)
			return
		}
		updated, err := g.backends.GetServer(r.Context(), id)
		if err != nil {
			g.sendServerError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, serverToResponse(updated))

	case http.MethodDelete:
		if err := g.backends.RemoveServer(r.Context(), id); err != nil {
			g.sendServerError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scope := store.RuleScope(r.URL.Query().Get("scope"))
		scopeID := r.URL.Query().Get("scope_id")
		rules, err := g.policy.GetRules(r.Context(), scope, scopeID)
		if err != nil {
			g.sendJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]RuleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, ruleToResponse(rule))
		}
		g.writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		priority := 0
		if req.Priority != nil {
			priority = *req.Priority
		}
		rule, err := g.policy.AddRule(r.Context(), &store.PolicyRule{
			Name:         req.Name,
			Scope:        store.RuleScope(req.Scope),
			ScopeID:      req.ScopeID,
			ResourceType: store.ResourceType(req.ResourceType),
			Pattern:      req.Pattern,
			Action:       store.RuleAction(req.Action),
			Priority:     priority,
			Enabled:      enabled,
		})
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.writeJSON(w, http.StatusCreated, ruleToResponse(rule))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handlePolicyByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/policies/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := g.policy.GetRule(r.Context(), id)
		if err != nil {
			g.sendStoreError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, ruleToResponse(rule))

	case http.MethodPut:
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		patch := policy.RulePatch{
			Priority: req.Priority,
			Enabled:  req.Enabled,
		}
		if req.Name != "" {
			patch.Name = &req.Name
		}
		if req.Pattern != "" {
			patch.Pattern = &req.Pattern
		}
		if req.Action != "" {
			action := store.RuleAction(req.Action)
			patch.Action = &action
		}
		rule, err := g.policy.UpdateRule(r.Context(), id, patch)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.sendJSONError(w, http.StatusNotFound, "rule not found")
			} else {
				g.sendJSONError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		g.writeJSON(w, http.StatusOK, ruleToResponse(rule))

	case http.MethodDelete:
		if err := g.policy.DeleteRule(r.Context(), id); err != nil {
			g.sendStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reqs, err := g.approvals.GetPendingRequests(r.Context())
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]ApprovalResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, approvalToResponse(req))
	}
	g.writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleApprovalRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/approvals/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "approval id required")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := g.approvals.GetRequest(r.Context(), id)
		if err != nil {
			g.sendStoreError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, approvalToResponse(req))

	case "respond":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body RespondRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.RespondedBy == "" {
			body.RespondedBy = auth.SubjectFromContext(r.Context())
		}
		err := g.approvals.Respond(r.Context(), id, body.Approved, body.RespondedBy, body.Note)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.sendJSONError(w, http.StatusNotFound, "approval not found")
			} else {
				// Already resolved: the first decision stands.
				g.sendJSONError(w, http.StatusConflict, err.Error())
			}
			return
		}
		g.auditApprovalRespond(r.Context(), id, body.Approved, body.RespondedBy)
		resolved, err := g.approvals.GetRequest(r.Context(), id)
		if err != nil {
			g.sendStoreError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, approvalToResponse(resolved))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *Gateway) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tokens, err := g.tokens.List(r.Context(), r.URL.Query().Get("client_id"))
		if err != nil {
			g.sendJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]TokenResponse, 0, len(tokens))
		for _, tok := range tokens {
			out = append(out, tokenToResponse(tok))
		}
		g.writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		tok, err := g.tokens.Generate(r.Context(), token.GenerateOptions{
			ClientID:     req.ClientID,
			Name:         req.Name,
			TTLSeconds:   req.TTLSeconds,
			Scopes:       req.Scopes,
			ServerAccess: req.ServerAccess,
		})
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.writeJSON(w, http.StatusCreated, tokenToResponse(tok))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleTokenRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "token id required")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := g.tokens.Revoke(r.Context(), id); err != nil {
			g.sendJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "refresh":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		tok, err := g.tokens.Refresh(r.Context(), id)
		if err != nil {
			g.sendTokenError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, tokenToResponse(tok))

	case "access":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			ServerAccess map[string]bool `json:"serverAccess"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		tok, err := g.tokens.UpdateServerAccess(r.Context(), id, body.ServerAccess)
		if err != nil {
			g.sendTokenError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, tokenToResponse(tok))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	filter := store.AuditFilter{ClientID: q.Get("client_id")}
	if v := q.Get("since"); v != "" {
		filter.Since, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("until"); v != "" {
		filter.Until, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		filter.Action = &action
	}

	entries, err := g.store.ListAudit(r.Context(), filter)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:         e.ID,
			Action:     string(e.Action),
			ClientID:   e.ClientID,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Success:    e.Success,
			Timestamp:  e.Timestamp,
			Detail:     e.Detail,
		})
	}
	g.writeJSON(w, http.StatusOK, out)
}

// auditApprovalRespond records who decided an approval request. Failures
// are logged, never surfaced; the decision already stands.
func (g *Gateway) auditApprovalRespond(ctx context.Context, id string, approved bool, respondedBy string) {
	entry := &store.AuditEntry{
		Action:     store.AuditApprovalRespond,
		TargetType: "approval",
		TargetID:   id,
		Success:    true,
		Detail:     map[string]any{"approved": approved, "responded_by": respondedBy},
	}
	if err := g.store.AppendAudit(ctx, entry); err != nil {
		g.logger.Warn("audit append failed", "action", store.AuditApprovalRespond, "approval_id", id, "error", err)
	}
}

// sendServerError maps supervisor and store errors to HTTP statuses.
func (g *Gateway) sendServerError(w http.ResponseWriter, err error) {
	var verr *supervisor.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "server not found")
	case errors.Is(err, supervisor.ErrServerRunning):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, supervisor.ErrNotRunning):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		g.sendJSONError(w, http.StatusBadRequest, verr.Error())
	default:
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (g *Gateway) sendStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	g.sendJSONError(w, http.StatusInternalServerError, err.Error())
}

func (g *Gateway) sendTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrInvalidFormat):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, token.ErrTokenNotFound), errors.Is(err, token.ErrTokenExpired):
		g.sendJSONError(w, http.StatusNotFound, "token not found or expired")
	default:
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

func serverToResponse(srv *store.BackendServer) ServerResponse {
	return ServerResponse{
		ID:          srv.ID,
		Name:        srv.Name,
		Transport:   string(srv.Transport),
		Command:     srv.Command,
		Args:        srv.Args,
		Env:         srv.Env,
		URL:         srv.URL,
		Permissions: srv.Permissions,
		Status:      string(srv.Status),
		LastError:   srv.LastError,
		CreatedAt:   srv.CreatedAt,
		UpdatedAt:   srv.UpdatedAt,
	}
}

func ruleToResponse(rule *store.PolicyRule) RuleResponse {
	return RuleResponse{
		ID:           rule.ID,
		Name:         rule.Name,
		Scope:        string(rule.Scope),
		ScopeID:      rule.ScopeID,
		ResourceType: string(rule.ResourceType),
		Pattern:      rule.Pattern,
		Action:       string(rule.Action),
		Priority:     rule.Priority,
		Enabled:      rule.Enabled,
		CreatedAt:    rule.CreatedAt,
		UpdatedAt:    rule.UpdatedAt,
	}
}

func approvalToResponse(req *store.ApprovalRequest) ApprovalResponse {
	return ApprovalResponse{
		ID:            req.ID,
		ClientID:      req.ClientID,
		ServerID:      req.ServerID,
		ToolName:      req.ToolName,
		ToolArguments: req.ToolArguments,
		PolicyRuleID:  req.PolicyRuleID,
		Status:        string(req.Status),
		RequestedAt:   req.RequestedAt,
		ExpiresAt:     req.ExpiresAt,
		RespondedAt:   req.RespondedAt,
		RespondedBy:   req.RespondedBy,
		Note:          req.ResponseNote,
	}
}

func tokenToResponse(tok *store.Token) TokenResponse {
	return TokenResponse{
		ID:           tok.ID,
		ClientID:     tok.ClientID,
		Name:         tok.Name,
		Scopes:       tok.Scopes,
		ServerAccess: tok.ServerAccess,
		CreatedAt:    tok.IssuedAt,
		ExpiresAt:    tok.ExpiresAt,
		LastUsedAt:   tok.LastUsedAt,
	}
}
