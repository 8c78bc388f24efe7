// ABOUTME: Request pipeline gating tool calls behind auth, policy, and approval
// ABOUTME: Every backend invocation flows through CallTool exactly once

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/mcp-router/internal/approval"
	"github.com/2389/mcp-router/internal/policy"
	"github.com/2389/mcp-router/internal/store"
	"github.com/2389/mcp-router/internal/supervisor"
	"github.com/2389/mcp-router/internal/token"
)

// RejectionReason classifies why a call was refused.
type RejectionReason string

const (
	ReasonAuth             RejectionReason = "auth"
	ReasonPolicyDenied     RejectionReason = "policy_denied"
	ReasonApprovalRejected RejectionReason = "approval_rejected"
	ReasonApprovalExpired  RejectionReason = "approval_expired"
	ReasonServerNotReady   RejectionReason = "server_not_ready"
)

// CallRejection is a refused tool call. It is an expected outcome, not an
// internal failure; callers branch on Reason to shape the client-facing
// response.
type CallRejection struct {
	Reason   RejectionReason
	RuleID   string // winning policy rule, when one drove the decision
	ServerID string
	Tool     string
	Msg      string
}

func (r *CallRejection) Error() string {
	if r.Msg != "" {
		return fmt.Sprintf("call rejected (%s): %s", r.Reason, r.Msg)
	}
	return fmt.Sprintf("call rejected (%s)", r.Reason)
}

// Pipeline composes the token authority, policy engine, approval queue, and
// supervisor into the single path a tool call takes through the router.
type Pipeline struct {
	tokens      *token.Authority
	policy      *policy.Engine
	approvals   *approval.Queue
	backends    *supervisor.Supervisor
	store       store.AuditStore
	logger      *slog.Logger
	callTimeout time.Duration
}

// New creates a pipeline. callTimeout bounds the backend invocation only;
// time spent waiting for human approval does not count against it.
func New(tokens *token.Authority, pol *policy.Engine, approvals *approval.Queue, backends *supervisor.Supervisor, auditStore store.AuditStore, logger *slog.Logger, callTimeout time.Duration) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout == 0 {
		callTimeout = 60 * time.Second
	}
	return &Pipeline{
		tokens:      tokens,
		policy:      pol,
		approvals:   approvals,
		backends:    backends,
		store:       auditStore,
		logger:      logger.With("component", "pipeline"),
		callTimeout: callTimeout,
	}
}

// Authorize validates the bearer token. Any validation failure surfaces as
// an auth rejection without revealing whether the token exists.
func (p *Pipeline) Authorize(ctx context.Context, tokenID string) (*store.Token, error) {
	tok, err := p.tokens.Validate(ctx, tokenID)
	if err != nil {
		if errors.Is(err, token.ErrInvalidFormat) || errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, token.ErrTokenExpired) {
			return nil, &CallRejection{Reason: ReasonAuth, Msg: "invalid or expired token"}
		}
		return nil, fmt.Errorf("validating token: %w", err)
	}
	return tok, nil
}

// VisibleTools returns the tool catalog of every running server the token
// may reach, keyed by server id. Servers with an explicit deny in the
// token's server access map are omitted, as are tools disabled by the
// server's per-tool permission overrides.
func (p *Pipeline) VisibleTools(ctx context.Context, tok *store.Token) map[string][]mcp.Tool {
	out := make(map[string][]mcp.Tool)
	for _, serverID := range p.backends.RunningServers() {
		if allowed, ok := tok.ServerAccess[serverID]; ok && !allowed {
			continue
		}
		tools, err := p.backends.Tools(serverID)
		if err != nil {
			continue
		}
		srv, err := p.backends.GetServer(ctx, serverID)
		if err != nil {
			continue
		}
		kept := make([]mcp.Tool, 0, len(tools))
		for _, tool := range tools {
			if allowed, ok := srv.Permissions[tool.Name]; ok && !allowed {
				continue
			}
			kept = append(kept, tool)
		}
		out[serverID] = kept
	}
	return out
}

// CallTool runs one tool invocation through the full gate sequence: token
// validation, per-token server access, policy evaluation, approval when
// required, then the backend call. Refusals return *CallRejection.
func (p *Pipeline) CallTool(ctx context.Context, tokenID, serverID, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	tok, err := p.Authorize(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if allowed, ok := tok.ServerAccess[serverID]; ok && !allowed {
		rej := &CallRejection{Reason: ReasonAuth, ServerID: serverID, Tool: toolName, Msg: "token denies access to this server"}
		p.auditCall(ctx, tok.ClientID, serverID, toolName, false, map[string]any{"reason": string(rej.Reason)})
		return nil, rej
	}

	// Per-tool overrides on the server definition gate before policy: an
	// explicitly disabled tool is refused no matter what the rules say.
	if srv, err := p.backends.GetServer(ctx, serverID); err == nil {
		if allowed, ok := srv.Permissions[toolName]; ok && !allowed {
			rej := &CallRejection{Reason: ReasonPolicyDenied, ServerID: serverID, Tool: toolName, Msg: "tool disabled on this server"}
			p.auditCall(ctx, tok.ClientID, serverID, toolName, false, map[string]any{"reason": string(rej.Reason)})
			return nil, rej
		}
	}

	decision, err := p.policy.Evaluate(ctx, policy.Request{
		ResourceType: store.ResourceTool,
		ResourceName: toolName,
		ClientID:     tok.ClientID,
		ServerID:     serverID,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating policy: %w", err)
	}

	switch decision.Action {
	case store.ActionAllow:
		// fall through to the backend call

	case store.ActionRequireApproval:
		if err := p.awaitApproval(ctx, tok.ClientID, serverID, toolName, args, decision.RuleID); err != nil {
			var rej *CallRejection
			if errors.As(err, &rej) {
				p.auditCall(ctx, tok.ClientID, serverID, toolName, false, map[string]any{"reason": string(rej.Reason), "rule_id": decision.RuleID})
			}
			return nil, err
		}

	default:
		// Deny, redact, and the implicit no-match deny all refuse the
		// call. Redaction of results is not supported, so a redact rule
		// degrades to deny rather than leaking unfiltered output.
		rej := &CallRejection{Reason: ReasonPolicyDenied, RuleID: decision.RuleID, ServerID: serverID, Tool: toolName, Msg: "denied by policy"}
		p.auditCall(ctx, tok.ClientID, serverID, toolName, false, map[string]any{"reason": string(rej.Reason), "rule_id": decision.RuleID})
		return nil, rej
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	res, err := p.backends.CallTool(callCtx, serverID, toolName, args)
	if err != nil {
		if errors.Is(err, supervisor.ErrNotRunning) {
			rej := &CallRejection{Reason: ReasonServerNotReady, ServerID: serverID, Tool: toolName, Msg: "server is not running"}
			p.auditCall(ctx, tok.ClientID, serverID, toolName, false, map[string]any{"reason": string(rej.Reason)})
			return nil, rej
		}
		p.auditCall(ctx, tok.ClientID, serverID, toolName, false, map[string]any{"error": err.Error()})
		return nil, err
	}

	p.auditCall(ctx, tok.ClientID, serverID, toolName, true, map[string]any{"rule_id": decision.RuleID})
	return res, nil
}

// awaitApproval suspends the call until a human decides or the request
// expires. The caller's context bounds the wait; an expired or rejected
// request surfaces as a rejection.
func (p *Pipeline) awaitApproval(ctx context.Context, clientID, serverID, toolName string, args map[string]any, ruleID string) error {
	req, err := p.approvals.Create(ctx, clientID, serverID, toolName, args, ruleID, 0)
	if err != nil {
		return fmt.Errorf("creating approval request: %w", err)
	}
	p.logger.Info("call suspended for approval", "approval_id", req.ID, "tool", toolName, "server_id", serverID)

	status, err := p.approvals.Wait(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("waiting for approval %s: %w", req.ID, err)
	}
	switch status {
	case store.ApprovalApproved:
		return nil
	case store.ApprovalExpired:
		return &CallRejection{Reason: ReasonApprovalExpired, RuleID: ruleID, ServerID: serverID, Tool: toolName, Msg: "approval request expired"}
	default:
		return &CallRejection{Reason: ReasonApprovalRejected, RuleID: ruleID, ServerID: serverID, Tool: toolName, Msg: "approval request rejected"}
	}
}

func (p *Pipeline) auditCall(ctx context.Context, clientID, serverID, toolName string, success bool, detail map[string]any) {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["server_id"] = serverID
	entry := &store.AuditEntry{
		Action:     store.AuditToolCall,
		ClientID:   clientID,
		TargetType: "tool",
		TargetID:   toolName,
		Success:    success,
		Detail:     detail,
	}
	if err := p.store.AppendAudit(ctx, entry); err != nil {
		p.logger.Warn("audit append failed", "action", store.AuditToolCall, "tool", toolName, "error", err)
	}
}
