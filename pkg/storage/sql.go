// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStorage keeps one row per session in a single table. Supported
// dialects are postgres, mysql and sqlite.
type SQLStorage struct {
	db      *sql.DB
	dialect string
	table   string
}

// NewSQLStorage creates the table if needed. schema is only honoured
// for postgres.
func NewSQLStorage(ctx context.Context, db *sql.DB, dialect, schema, table string) (*SQLStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if schema != "" && !identPattern.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}

	s := &SQLStorage{db: db, dialect: dialect, table: table}
	if dialect == "postgres" && schema != "" {
		s.table = schema + "." + table
	}

	if err := s.initSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStorage) initSchema(ctx context.Context, schema string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.dialect == "postgres" && schema != "" {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
	}

	memoryType := "TEXT"
	switch s.dialect {
	case "postgres":
		memoryType = "JSONB"
	case "mysql":
		memoryType = "LONGTEXT"
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    session_id VARCHAR(255) NOT NULL PRIMARY KEY,
    user_id VARCHAR(255),
    memory %s,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`, s.table, memoryType)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}

	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s(user_id)", strings.ReplaceAll(s.table, ".", "_"), s.table)
	if s.dialect == "mysql" {
		// MySQL has no IF NOT EXISTS for indexes; the primary key covers lookups.
		return nil
	}
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create user index: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) Read(ctx context.Context, sessionID string) (*Session, error) {
	query := s.rebind(fmt.Sprintf(
		"SELECT session_id, user_id, memory, created_at, updated_at FROM %s WHERE session_id = ?", s.table))

	var (
		sess   Session
		userID sql.NullString
		raw    []byte
	)
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&sess.ID, &userID, &raw, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	sess.UserID = userID.String

	if len(raw) > 0 {
		var mem memory
		if err := json.Unmarshal(raw, &mem); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
		}
		sess.Messages = mem.Messages
		sess.Runs = mem.Runs
	}
	return &sess, nil
}

func (s *SQLStorage) Upsert(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	raw, err := json.Marshal(memory{Messages: sess.Messages, Runs: sess.Runs})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	now := time.Now().UTC()
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}

	var query string
	switch s.dialect {
	case "mysql":
		query = fmt.Sprintf(`
INSERT INTO %s (session_id, user_id, memory, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE user_id = VALUES(user_id), memory = VALUES(memory), updated_at = VALUES(updated_at)`, s.table)
	default:
		query = fmt.Sprintf(`
INSERT INTO %s (session_id, user_id, memory, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET user_id = excluded.user_id, memory = excluded.memory, updated_at = excluded.updated_at`, s.table)
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(query), sess.ID, sess.UserID, string(raw), created, now); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLStorage) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	query := fmt.Sprintf("SELECT session_id FROM %s", s.table)
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStorage) Delete(ctx context.Context, sessionID string) error {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.table))
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

var _ Storage = (*SQLStorage)(nil)
