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

package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// PgVectorConfig configures the PostgreSQL + pgvector backend.
type PgVectorConfig struct {
	Schema string `yaml:"schema,omitempty"`
}

// PgVectorProvider stores each collection as a table in Schema.
type PgVectorProvider struct {
	db     *sql.DB
	schema string
}

// NewPgVectorProvider wraps an open PostgreSQL handle.
func NewPgVectorProvider(db *sql.DB, cfg PgVectorConfig) (*PgVectorProvider, error) {
	if db == nil {
		return nil, fmt.Errorf("pgvector requires a database connection")
	}
	schema := cfg.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	return &PgVectorProvider{db: db, schema: schema}, nil
}

func (p *PgVectorProvider) Name() string {
	return string(ProviderPgVector)
}

func (p *PgVectorProvider) table(collection string) string {
	return pq.QuoteIdentifier(p.schema) + "." + pq.QuoteIdentifier(collection)
}

func (p *PgVectorProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return wrapErr(p.Name(), "create collection", fmt.Errorf("invalid dimension %d", dimension))
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(p.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ
		)`, p.table(collection), dimension),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return wrapErr(p.Name(), "create collection", err)
		}
	}
	return nil
}

func (p *PgVectorProvider) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(p.Name(), "upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()`, p.table(collection)))
	if err != nil {
		return wrapErr(p.Name(), "upsert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return wrapErr(p.Name(), "upsert", fmt.Errorf("metadata for %s: %w", r.ID, err))
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Content, meta, formatVector(r.Vector)); err != nil {
			return wrapErr(p.Name(), "upsert", fmt.Errorf("record %s: %w", r.ID, err))
		}
	}

	return wrapErr(p.Name(), "upsert", tx.Commit())
}

func (p *PgVectorProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, p.table(collection))

	rows, err := p.db.QueryContext(ctx, query, formatVector(vector), topK)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, wrapErr(p.Name(), "search", ErrCollectionNotFound)
		}
		return nil, wrapErr(p.Name(), "search", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r     Result
			meta  []byte
			score float64
		)
		if err := rows.Scan(&r.ID, &r.Content, &meta, &score); err != nil {
			return nil, wrapErr(p.Name(), "search", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, wrapErr(p.Name(), "search", fmt.Errorf("metadata for %s: %w", r.ID, err))
			}
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	return results, wrapErr(p.Name(), "search", rows.Err())
}

func (p *PgVectorProvider) DeleteCollection(ctx context.Context, collection string) error {
	_, err := p.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+p.table(collection))
	return wrapErr(p.Name(), "delete collection", err)
}

// Close is a no-op; the connection pool owns the handle.
func (p *PgVectorProvider) Close() error {
	return nil
}

// formatVector renders v in pgvector's text input format: [1,2.5,3].
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

var _ Provider = (*PgVectorProvider)(nil)
