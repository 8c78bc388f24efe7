// ABOUTME: Token persistence methods for the SQLite store
// ABOUTME: Token timestamps are Unix epoch seconds; scopes and serverAccess are JSON columns

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateToken inserts a new bearer token row.
func (s *SQLiteStore) CreateToken(ctx context.Context, tok *Token) error {
	scopes, err := marshalJSON(tok.Scopes)
	if err != nil {
		return err
	}
	access, err := marshalJSON(tok.ServerAccess)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tokens (id, client_id, name, issued_at, expires_at, scopes_json, access_json, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		tok.ID,
		tok.ClientID,
		tok.Name,
		tok.IssuedAt,
		tok.ExpiresAt,
		scopes,
		access,
		nullInt(tok.LastUsedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting token: %w", err)
	}

	s.logger.Debug("created token", "id_prefix", tok.ID[:10], "client_id", tok.ClientID)
	return nil
}

// GetToken retrieves a token by id.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) GetToken(ctx context.Context, id string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, tokenSelect+` WHERE id = ?`, id)
	tok, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return tok, nil
}

// ListTokensByClient returns all tokens issued to a client, newest first.
func (s *SQLiteStore) ListTokensByClient(ctx context.Context, clientID string) ([]*Token, error) {
	query := tokenSelect + ` WHERE client_id = ? ORDER BY issued_at DESC`
	rows, err := s.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// UpdateToken rewrites a token's mutable fields (expiry, scopes, server
// access, last-used timestamp).
func (s *SQLiteStore) UpdateToken(ctx context.Context, tok *Token) error {
	scopes, err := marshalJSON(tok.Scopes)
	if err != nil {
		return err
	}
	access, err := marshalJSON(tok.ServerAccess)
	if err != nil {
		return err
	}

	query := `
		UPDATE tokens
		SET expires_at = ?, scopes_json = ?, access_json = ?, last_used_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		tok.ExpiresAt,
		scopes,
		access,
		nullInt(tok.LastUsedAt),
		tok.ID,
	)
	if err != nil {
		return fmt.Errorf("updating token: %w", err)
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

// DeleteToken removes a token row. Deleting a missing token is not an error;
// revocation is idempotent.
func (s *SQLiteStore) DeleteToken(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

const tokenSelect = `
	SELECT id, client_id, name, issued_at, expires_at, scopes_json, access_json, last_used_at
	FROM tokens
`

func scanToken(row rowScanner) (*Token, error) {
	var tok Token
	var scopesJSON, accessJSON sql.NullString
	var lastUsed sql.NullInt64

	err := row.Scan(
		&tok.ID,
		&tok.ClientID,
		&tok.Name,
		&tok.IssuedAt,
		&tok.ExpiresAt,
		&scopesJSON,
		&accessJSON,
		&lastUsed,
	)
	if err != nil {
		return nil, err
	}

	tok.LastUsedAt = lastUsed.Int64
	if err := unmarshalJSON(scopesJSON, &tok.Scopes); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(accessJSON, &tok.ServerAccess); err != nil {
		return nil, err
	}
	return &tok, nil
}
