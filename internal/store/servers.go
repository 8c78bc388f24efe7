// ABOUTME: BackendServer persistence methods for the SQLite store
// ABOUTME: Timestamps are Unix epoch milliseconds; composite fields are JSON columns

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateServer inserts a new backend server row.
// Returns ErrDuplicateID if the id already exists.
func (s *SQLiteStore) CreateServer(ctx context.Context, srv *BackendServer) error {
	now := nowMillis()
	if srv.CreatedAt == 0 {
		srv.CreatedAt = now
	}
	if srv.UpdatedAt == 0 {
		srv.UpdatedAt = now
	}
	if srv.Status == "" {
		srv.Status = ServerStopped
	}

	args, err := marshalJSON(srv.Args)
	if err != nil {
		return err
	}
	env, err := marshalJSON(srv.Env)
	if err != nil {
		return err
	}
	perms, err := marshalJSON(srv.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO servers (id, name, transport, command, args_json, env_json, url, perms_json, status, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		srv.ID,
		srv.Name,
		string(srv.Transport),
		nullString(srv.Command),
		args,
		env,
		nullString(srv.URL),
		perms,
		string(srv.Status),
		nullString(srv.LastError),
		srv.CreatedAt,
		srv.UpdatedAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting server: %w", err)
	}

	s.logger.Debug("created server", "id", srv.ID, "name", srv.Name, "transport", srv.Transport)
	return nil
}

// GetServer retrieves a backend server by id.
// Returns ErrNotFound if the server doesn't exist.
func (s *SQLiteStore) GetServer(ctx context.Context, id string) (*BackendServer, error) {
	query := `
		SELECT id, name, transport, command, args_json, env_json, url, perms_json, status, last_error, created_at, updated_at
		FROM servers
		WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}
	return srv, nil
}

// ListServers returns all backend servers ordered by creation time.
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*BackendServer, error) {
	query := `
		SELECT id, name, transport, command, args_json, env_json, url, perms_json, status, last_error, created_at, updated_at
		FROM servers
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var servers []*BackendServer
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// UpdateServer rewrites a server's configuration fields.
// Status and LastError are not touched; use UpdateServerStatus for those.
func (s *SQLiteStore) UpdateServer(ctx context.Context, srv *BackendServer) error {
	srv.UpdatedAt = nowMillis()

	args, err := marshalJSON(srv.Args)
	if err != nil {
		return err
	}
	env, err := marshalJSON(srv.Env)
	if err != nil {
		return err
	}
	perms, err := marshalJSON(srv.Permissions)
	if err != nil {
		return err
	}

	query := `
		UPDATE servers
		SET name = ?, transport = ?, command = ?, args_json = ?, env_json = ?, url = ?, perms_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		srv.Name,
		string(srv.Transport),
		nullString(srv.Command),
		args,
		env,
		nullString(srv.URL),
		perms,
		srv.UpdatedAt,
		srv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating server: %w", err)
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

// UpdateServerStatus sets a server's status and last error.
// Called only by the supervisor, which owns the status field.
func (s *SQLiteStore) UpdateServerStatus(ctx context.Context, id string, status ServerStatus, lastError string) error {
	query := `
		UPDATE servers
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), nullString(lastError), nowMillis(), id)
	if err != nil {
		return fmt.Errorf("updating server status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated server status", "id", id, "status", status)
	return nil
}

// DeleteServer removes a server row.
// Returns ErrNotFound if the server doesn't exist.
func (s *SQLiteStore) DeleteServer(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
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

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*BackendServer, error) {
	var srv BackendServer
	var transport, status string
	var command, url, lastError, argsJSON, envJSON, permsJSON sql.NullString

	err := row.Scan(
		&srv.ID,
		&srv.Name,
		&transport,
		&command,
		&argsJSON,
		&envJSON,
		&url,
		&permsJSON,
		&status,
		&lastError,
		&srv.CreatedAt,
		&srv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	srv.Transport = Transport(transport)
	srv.Status = ServerStatus(status)
	srv.Command = command.String
	srv.URL = url.String
	srv.LastError = lastError.String

	if err := unmarshalJSON(argsJSON, &srv.Args); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(envJSON, &srv.Env); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(permsJSON, &srv.Permissions); err != nil {
		return nil, err
	}
	return &srv, nil
}
