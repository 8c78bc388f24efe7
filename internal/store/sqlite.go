// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides server/policy/approval/token persistence with automatic schema creation

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS servers (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			transport   TEXT NOT NULL,
			command     TEXT,
			args_json   TEXT,
			env_json    TEXT,
			url         TEXT,
			perms_json  TEXT,
			status      TEXT NOT NULL,
			last_error  TEXT,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,

			CHECK (transport IN ('stdio', 'http', 'sse')),
			CHECK (status IN ('stopped', 'starting', 'running', 'stopping', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_servers_status ON servers(status);

		CREATE TABLE IF NOT EXISTS policy_rules (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			scope         TEXT NOT NULL,
			scope_id      TEXT,
			resource_type TEXT NOT NULL,
			pattern       TEXT NOT NULL,
			action        TEXT NOT NULL,
			priority      INTEGER NOT NULL DEFAULT 0,
			enabled       INTEGER NOT NULL DEFAULT 1,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,

			CHECK (scope IN ('global', 'workspace', 'server', 'client')),
			CHECK (resource_type IN ('tool', 'server', 'resource')),
			CHECK (action IN ('allow', 'deny', 'require_approval', 'redact')),
			CHECK (scope = 'global' OR scope_id IS NOT NULL)
		);

		CREATE INDEX IF NOT EXISTS idx_rules_enabled_type
			ON policy_rules(enabled, resource_type);
		CREATE INDEX IF NOT EXISTS idx_rules_scope ON policy_rules(scope, scope_id);

		CREATE TABLE IF NOT EXISTS approval_requests (
			id             TEXT PRIMARY KEY,
			client_id      TEXT NOT NULL,
			server_id      TEXT NOT NULL,
			tool_name      TEXT NOT NULL,
			tool_args_json TEXT,
			policy_rule_id TEXT NOT NULL,
			status         TEXT NOT NULL,
			requested_at   INTEGER NOT NULL,
			expires_at     INTEGER NOT NULL,
			responded_at   INTEGER,
			responded_by   TEXT,
			response_note  TEXT,

			CHECK (status IN ('pending', 'approved', 'rejected', 'expired'))
		);

		CREATE INDEX IF NOT EXISTS idx_approvals_status ON approval_requests(status);
		CREATE INDEX IF NOT EXISTS idx_approvals_expiry
			ON approval_requests(status, expires_at);

		CREATE TABLE IF NOT EXISTS tokens (
			id            TEXT PRIMARY KEY,
			client_id     TEXT NOT NULL,
			name          TEXT NOT NULL,
			issued_at     INTEGER NOT NULL,
			expires_at    INTEGER NOT NULL,
			scopes_json   TEXT,
			access_json   TEXT,
			last_used_at  INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_tokens_client ON tokens(client_id);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			client_id   TEXT,
			target_type TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			success     INTEGER NOT NULL,
			ts          INTEGER NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_type, target_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt returns nil for zero, otherwise the value
func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// marshalJSON encodes v as JSON for storage, returning nil for nil values
// so the column stays NULL rather than holding the string "null".
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding JSON column: %w", err)
	}
	return string(data), nil
}

// unmarshalJSON decodes a nullable JSON column into dst. A NULL or empty
// column leaves dst untouched.
func unmarshalJSON(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("decoding JSON column: %w", err)
	}
	return nil
}
