// ABOUTME: ApprovalRequest persistence methods for the SQLite store
// ABOUTME: Status transitions use compare-and-set updates so exactly one responder wins

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateApproval inserts a new pending approval request.
func (s *SQLiteStore) CreateApproval(ctx context.Context, req *ApprovalRequest) error {
	if req.Status == "" {
		req.Status = ApprovalPending
	}
	if req.RequestedAt == 0 {
		req.RequestedAt = nowMillis()
	}

	args, err := marshalJSON(req.ToolArguments)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_requests (id, client_id, server_id, tool_name, tool_args_json, policy_rule_id, status, requested_at, expires_at, responded_at, responded_by, response_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		req.ID,
		req.ClientID,
		req.ServerID,
		req.ToolName,
		args,
		req.PolicyRuleID,
		string(req.Status),
		req.RequestedAt,
		req.ExpiresAt,
		nullInt(req.RespondedAt),
		nullString(req.RespondedBy),
		nullString(req.ResponseNote),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting approval request: %w", err)
	}

	s.logger.Debug("created approval request", "id", req.ID, "tool", req.ToolName, "server_id", req.ServerID)
	return nil
}

// GetApproval retrieves an approval request by id.
// Returns ErrNotFound if the request doesn't exist.
func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (*ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, approvalSelect+` WHERE id = ?`, id)
	req, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying approval request: %w", err)
	}
	return req, nil
}

// ListPendingApprovals returns all pending requests, oldest first.
func (s *SQLiteStore) ListPendingApprovals(ctx context.Context) ([]*ApprovalRequest, error) {
	query := approvalSelect + ` WHERE status = 'pending' ORDER BY requested_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying pending approvals: %w", err)
	}
	defer rows.Close()

	var reqs []*ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning approval request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// ResolveApproval transitions a pending request to the given terminal status.
// The WHERE status='pending' guard makes concurrent responders resolve
// exactly one winner: only the first update affects a row. Returns false when
// the request was not pending (or does not exist); callers distinguish those
// two cases with GetApproval.
func (s *SQLiteStore) ResolveApproval(ctx context.Context, id string, status ApprovalStatus, respondedBy, note string, respondedAt int64) (bool, error) {
	query := `
		UPDATE approval_requests
		SET status = ?, responded_at = ?, responded_by = ?, response_note = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := s.db.ExecContext(ctx, query,
		string(status),
		respondedAt,
		nullString(respondedBy),
		nullString(note),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("resolving approval request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking resolve result: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	s.logger.Debug("resolved approval request", "id", id, "status", status, "responded_by", respondedBy)
	return true, nil
}

// ExpirePendingApprovals transitions every pending request whose expiry is
// before cutoff to expired and returns the affected ids.
func (s *SQLiteStore) ExpirePendingApprovals(ctx context.Context, cutoff int64) ([]string, error) {
	// Collect the ids first so callers can release their waiters.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM approval_requests WHERE status = 'pending' AND expires_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying expired approvals: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning expired approval id: %w", err)
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var swept []string
	for _, id := range expired {
		// Re-check pending per row; a responder may have won in between.
		ok, err := s.ResolveApproval(ctx, id, ApprovalExpired, "", "", nowMillis())
		if err != nil {
			return swept, err
		}
		if ok {
			swept = append(swept, id)
		}
	}
	return swept, nil
}

const approvalSelect = `
	SELECT id, client_id, server_id, tool_name, tool_args_json, policy_rule_id, status, requested_at, expires_at, responded_at, responded_by, response_note
	FROM approval_requests
`

func scanApproval(row rowScanner) (*ApprovalRequest, error) {
	var req ApprovalRequest
	var status string
	var argsJSON, respondedBy, responseNote sql.NullString
	var respondedAt sql.NullInt64

	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.ServerID,
		&req.ToolName,
		&argsJSON,
		&req.PolicyRuleID,
		&status,
		&req.RequestedAt,
		&req.ExpiresAt,
		&respondedAt,
		&respondedBy,
		&responseNote,
	)
	if err != nil {
		return nil, err
	}

	req.Status = ApprovalStatus(status)
	req.RespondedAt = respondedAt.Int64
	req.RespondedBy = respondedBy.String
	req.ResponseNote = responseNote.String

	if err := unmarshalJSON(argsJSON, &req.ToolArguments); err != nil {
		return nil, err
	}
	return &req, nil
}
