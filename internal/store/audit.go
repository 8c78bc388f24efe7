// ABOUTME: Audit log entity and store methods for tracking router operations
// ABOUTME: Records token, policy, approval, and server actions with success/failure

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditTokenCreate       AuditAction = "token.create"
	AuditTokenValidate     AuditAction = "token.validate"
	AuditTokenRevoke       AuditAction = "token.revoke"
	AuditTokenRefresh      AuditAction = "token.refresh"
	AuditTokenUpdateAccess AuditAction = "token.update_access"
	AuditApprovalRespond   AuditAction = "approval.respond"
	AuditServerStart       AuditAction = "server.start"
	AuditServerStop        AuditAction = "server.stop"
	AuditToolCall          AuditAction = "tool.call"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string         // UUID v4
	Action     AuditAction    // what happened
	ClientID   string         // acting client, empty for system actions
	TargetType string         // "token", "rule", "approval", "server", "tool"
	TargetID   string         // id of the affected resource
	Success    bool           // whether the operation succeeded
	Timestamp  int64          // Unix epoch milliseconds
	Detail     map[string]any // additional context
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since    int64        // entries at or after this epoch-millisecond time
	Until    int64        // entries before this epoch-millisecond time
	ClientID string       // filter by acting client
	Action   *AuditAction // filter by action type
	Limit    int          // max results (default 100, max 1000)
}

// AuditStore records and queries audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)
}

// AppendAudit appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp == 0 {
		e.Timestamp = nowMillis()
	}

	detail, err := marshalJSON(e.Detail)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_log (audit_id, action, client_id, target_type, target_id, success, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		string(e.Action),
		nullString(e.ClientID),
		e.TargetType,
		e.TargetID,
		boolToInt(e.Success),
		e.Timestamp,
		detail,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
		"success", e.Success,
	)
	return nil
}

// ListAudit returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	query := `
		SELECT audit_id, action, client_id, target_type, target_id, success, ts, detail_json
		FROM audit_log
		WHERE 1=1
	`
	var args []any
	if f.Since != 0 {
		query += ` AND ts >= ?`
		args = append(args, f.Since)
	}
	if f.Until != 0 {
		query += ` AND ts < ?`
		args = append(args, f.Until)
	}
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Action != nil {
		query += ` AND action = ?`
		args = append(args, string(*f.Action))
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, normalizeAuditLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var action string
		var clientID, detailJSON sql.NullString
		var success int
		if err := rows.Scan(&e.ID, &action, &clientID, &e.TargetType, &e.TargetID, &success, &e.Timestamp, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(action)
		e.ClientID = clientID.String
		e.Success = success != 0
		if err := unmarshalJSON(detailJSON, &e.Detail); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
