// ABOUTME: Policy engine for evaluating tool-call requests against prioritized rules
// ABOUTME: Fail-closed: a request matching no enabled rule is denied

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/mcp-router/internal/ids"
	"github.com/2389/mcp-router/internal/store"
)

// Decision is the outcome of evaluating one request.
type Decision struct {
	Action store.RuleAction
	// RuleID is the id of the winning rule, empty when no rule matched
	// (implicit deny).
	RuleID string
}

// Request is the tuple the engine evaluates.
type Request struct {
	ResourceType store.ResourceType
	ResourceName string
	ClientID     string
	ServerID     string
	WorkspaceID  string
}

// Engine evaluates requests against the stored rule set. Evaluation reads a
// consistent snapshot at call time; concurrent rule edits take effect for the
// next evaluation only.
type Engine struct {
	store  store.PolicyStore
	logger *slog.Logger
}

// NewEngine creates a policy engine backed by the given store.
func NewEngine(st store.PolicyStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		logger: logger.With("component", "policy"),
	}
}

// Evaluate resolves a request to a decision.
//
// Enabled rules of the request's resource type are filtered by scope, then
// by pattern match against the resource name. The winner is the matching
// rule with the highest priority; ties break to the most recently created
// rule. No matching rule means deny.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Decision, error) {
	rules, err := e.store.ListEnabledRules(ctx, req.ResourceType)
	if err != nil {
		return Decision{}, fmt.Errorf("loading rules: %w", err)
	}

	// Rules arrive ordered by priority desc, created_at desc, id desc, so
	// the first scope-and-pattern match is the winner.
	for _, rule := range rules {
		if !scopeMatches(rule, req) {
			continue
		}
		if !PatternMatches(rule.Pattern, req.ResourceName) {
			continue
		}

		e.logger.Debug("policy decision",
			"resource", req.ResourceName,
			"action", rule.Action,
			"rule_id", rule.ID,
			"priority", rule.Priority)
		return Decision{Action: rule.Action, RuleID: rule.ID}, nil
	}

	// Fail-closed default
	e.logger.Debug("policy decision", "resource", req.ResourceName, "action", store.ActionDeny, "rule_id", "")
	return Decision{Action: store.ActionDeny}, nil
}

// scopeMatches reports whether a rule's scope applies to the request.
func scopeMatches(rule *store.PolicyRule, req Request) bool {
	switch rule.Scope {
	case store.ScopeGlobal:
		return true
	case store.ScopeWorkspace:
		return rule.ScopeID == req.WorkspaceID && req.WorkspaceID != ""
	case store.ScopeServer:
		return rule.ScopeID == req.ServerID && req.ServerID != ""
	case store.ScopeClient:
		return rule.ScopeID == req.ClientID && req.ClientID != ""
	default:
		return false
	}
}

// PatternMatches reports whether a rule pattern matches a resource name.
// Supported forms: exact literal, "prefix*", "*suffix", and bare "*".
// A "*" anywhere else is treated as a literal character.
func PatternMatches(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case len(pattern) > 1 && strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	default:
		return pattern == name
	}
}

// AddRule validates and persists a new rule, assigning its id.
func (e *Engine) AddRule(ctx context.Context, rule *store.PolicyRule) (*store.PolicyRule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = ids.New()
	}
	if err := e.store.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	e.logger.Info("policy rule added", "rule_id", rule.ID, "name", rule.Name, "action", rule.Action, "priority", rule.Priority)
	return rule, nil
}

// GetRule returns one rule by id.
func (e *Engine) GetRule(ctx context.Context, id string) (*store.PolicyRule, error) {
	return e.store.GetRule(ctx, id)
}

// GetRules returns rules filtered by scope and scope id; both filters are
// optional.
func (e *Engine) GetRules(ctx context.Context, scope store.RuleScope, scopeID string) ([]*store.PolicyRule, error) {
	return e.store.ListRules(ctx, scope, scopeID)
}

// UpdateRule applies a patch to an existing rule. In-flight evaluations that
// already took their snapshot are unaffected.
func (e *Engine) UpdateRule(ctx context.Context, id string, patch RulePatch) (*store.PolicyRule, error) {
	rule, err := e.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.apply(rule)
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	e.logger.Info("policy rule updated", "rule_id", rule.ID)
	return rule, nil
}

// DeleteRule removes a rule by id.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	if err := e.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	e.logger.Info("policy rule deleted", "rule_id", id)
	return nil
}

// RulePatch is a partial rule update; nil fields are left unchanged.
type RulePatch struct {
	Name     *string
	Pattern  *string
	Action   *store.RuleAction
	Priority *int
	Enabled  *bool
}

func (p RulePatch) apply(rule *store.PolicyRule) {
	if p.Name != nil {
		rule.Name = *p.Name
	}
	if p.Pattern != nil {
		rule.Pattern = *p.Pattern
	}
	if p.Action != nil {
		rule.Action = *p.Action
	}
	if p.Priority != nil {
		rule.Priority = *p.Priority
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
}

// validateRule checks the fields a rule must carry before persistence.
func validateRule(rule *store.PolicyRule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Pattern == "" {
		return fmt.Errorf("rule pattern is required")
	}
	switch rule.Scope {
	case store.ScopeGlobal:
	case store.ScopeWorkspace, store.ScopeServer, store.ScopeClient:
		if rule.ScopeID == "" {
			return store.ErrScopeIDRequired
		}
	default:
		return fmt.Errorf("unknown rule scope %q", rule.Scope)
	}
	switch rule.ResourceType {
	case store.ResourceTool, store.ResourceServer, store.ResourceResource:
	default:
		return fmt.Errorf("unknown resource type %q", rule.ResourceType)
	}
	switch rule.Action {
	case store.ActionAllow, store.ActionDeny, store.ActionRequireApproval, store.ActionRedact:
	default:
		return fmt.Errorf("unknown rule action %q", rule.Action)
	}
	return nil
}
