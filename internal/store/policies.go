// ABOUTME: PolicyRule persistence methods for the SQLite store
// ABOUTME: Enforces the scope/scopeId invariant and serves evaluation snapshots

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ErrScopeIDRequired is returned when a non-global rule is missing its scope id
var ErrScopeIDRequired = fmt.Errorf("scopeId required for non-global scope")

// CreateRule inserts a new policy rule.
// Returns ErrScopeIDRequired when scope is not global and scopeId is empty.
func (s *SQLiteStore) CreateRule(ctx context.Context, rule *PolicyRule) error {
	if rule.Scope != ScopeGlobal && rule.ScopeID == "" {
		return ErrScopeIDRequired
	}

	now := nowMillis()
	if rule.CreatedAt == 0 {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt == 0 {
		rule.UpdatedAt = now
	}

	query := `
		INSERT INTO policy_rules (id, name, scope, scope_id, resource_type, pattern, action, priority, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		string(rule.Scope),
		nullString(rule.ScopeID),
		string(rule.ResourceType),
		rule.Pattern,
		string(rule.Action),
		rule.Priority,
		boolToInt(rule.Enabled),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting policy rule: %w", err)
	}

	s.logger.Debug("created policy rule", "id", rule.ID, "name", rule.Name, "action", rule.Action, "priority", rule.Priority)
	return nil
}

// GetRule retrieves a policy rule by id.
// Returns ErrNotFound if the rule doesn't exist.
func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*PolicyRule, error) {
	row := s.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying policy rule: %w", err)
	}
	return rule, nil
}

// ListRules returns rules filtered by scope and scopeId. An empty scope
// returns every rule; a scope with empty scopeId returns all rules of that
// scope.
func (s *SQLiteStore) ListRules(ctx context.Context, scope RuleScope, scopeID string) ([]*PolicyRule, error) {
	query := ruleSelect
	var args []any
	switch {
	case scope != "" && scopeID != "":
		query += ` WHERE scope = ? AND scope_id = ?`
		args = append(args, string(scope), scopeID)
	case scope != "":
		query += ` WHERE scope = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY priority DESC, created_at DESC`

	return s.queryRules(ctx, query, args...)
}

// ListEnabledRules returns all enabled rules for a resource type, ordered
// for evaluation: priority descending, then most recently created, then id.
// This ordering makes the evaluation winner deterministic across processes.
func (s *SQLiteStore) ListEnabledRules(ctx context.Context, resourceType ResourceType) ([]*PolicyRule, error) {
	query := ruleSelect + `
		WHERE enabled = 1 AND resource_type = ?
		ORDER BY priority DESC, created_at DESC, id DESC
	`
	return s.queryRules(ctx, query, string(resourceType))
}

// UpdateRule rewrites a rule's fields. Evaluation snapshots already taken
// are unaffected; the next ListEnabledRules call observes the change.
func (s *SQLiteStore) UpdateRule(ctx context.Context, rule *PolicyRule) error {
	if rule.Scope != ScopeGlobal && rule.ScopeID == "" {
		return ErrScopeIDRequired
	}
	rule.UpdatedAt = nowMillis()

	query := `
		UPDATE policy_rules
		SET name = ?, scope = ?, scope_id = ?, resource_type = ?, pattern = ?, action = ?, priority = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		rule.Name,
		string(rule.Scope),
		nullString(rule.ScopeID),
		string(rule.ResourceType),
		rule.Pattern,
		string(rule.Action),
		rule.Priority,
		boolToInt(rule.Enabled),
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating policy rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a policy rule.
// Returns ErrNotFound if the rule doesn't exist.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM policy_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting policy rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const ruleSelect = `
	SELECT id, name, scope, scope_id, resource_type, pattern, action, priority, enabled, created_at, updated_at
	FROM policy_rules
`

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]*PolicyRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying policy rules: %w", err)
	}
	defer rows.Close()

	var rules []*PolicyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning policy rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (*PolicyRule, error) {
	var rule PolicyRule
	var scope, resourceType, action string
	var scopeID sql.NullString
	var enabled int

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&scope,
		&scopeID,
		&resourceType,
		&rule.Pattern,
		&action,
		&rule.Priority,
		&enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Scope = RuleScope(scope)
	rule.ScopeID = scopeID.String
	rule.ResourceType = ResourceType(resourceType)
	rule.Action = RuleAction(action)
	rule.Enabled = enabled != 0
	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
