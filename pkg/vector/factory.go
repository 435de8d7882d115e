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
	"database/sql"
	"fmt"
)

// Option customises NewProvider.
type Option func(*options)

type options struct {
	db *sql.DB
}

// WithDB supplies the PostgreSQL handle used by the pgvector backend.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// NewProvider builds the backend selected by cfg.Type.
func NewProvider(cfg Config, opts ...Option) (Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Type {
	case ProviderPgVector, "":
		pg := PgVectorConfig{}
		if cfg.PgVector != nil {
			pg = *cfg.PgVector
		}
		return NewPgVectorProvider(o.db, pg)

	case ProviderChromem:
		c := ChromemConfig{}
		if cfg.Chromem != nil {
			c = *cfg.Chromem
		}
		return NewChromemProvider(c)

	case ProviderQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant configuration is required")
		}
		return NewQdrantProvider(*cfg.Qdrant)

	case ProviderPinecone:
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("pinecone configuration is required")
		}
		return NewPineconeProvider(*cfg.Pinecone)

	default:
		return nil, fmt.Errorf("unknown vector provider type: %q", cfg.Type)
	}
}
