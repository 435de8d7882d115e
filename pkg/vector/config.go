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
	"fmt"
	"regexp"
)

// ProviderType identifies a vector backend.
type ProviderType string

const (
	ProviderPgVector ProviderType = "pgvector"
	ProviderChromem  ProviderType = "chromem"
	ProviderQdrant   ProviderType = "qdrant"
	ProviderPinecone ProviderType = "pinecone"
)

// Defaults.
const (
	DefaultCollection = "dishes"
	DefaultSchema     = "ai"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config selects and configures the vector backend.
type Config struct {
	Type       ProviderType `yaml:"type"`
	Collection string       `yaml:"collection"`

	// Dimension of stored vectors. Zero means "use the embedder's".
	Dimension int `yaml:"dimension,omitempty"`

	PgVector *PgVectorConfig `yaml:"pgvector,omitempty"`
	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

// SetDefaults fills in unset fields.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = ProviderPgVector
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	switch c.Type {
	case ProviderPgVector:
		if c.PgVector == nil {
			c.PgVector = &PgVectorConfig{}
		}
		if c.PgVector.Schema == "" {
			c.PgVector.Schema = DefaultSchema
		}
	case ProviderChromem:
		if c.Chromem == nil {
			c.Chromem = &ChromemConfig{}
		}
	case ProviderQdrant:
		if c.Qdrant == nil {
			c.Qdrant = &QdrantConfig{}
		}
		if c.Qdrant.Host == "" {
			c.Qdrant.Host = "localhost"
		}
		if c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("vector_db.collection is required")
	}
	if c.Dimension < 0 {
		return fmt.Errorf("vector_db.dimension must be non-negative")
	}
	switch c.Type {
	case ProviderPgVector:
		if !identPattern.MatchString(c.Collection) {
			return fmt.Errorf("vector_db.collection %q is not a valid table name", c.Collection)
		}
		if c.PgVector != nil && c.PgVector.Schema != "" && !identPattern.MatchString(c.PgVector.Schema) {
			return fmt.Errorf("vector_db.pgvector.schema %q is not a valid schema name", c.PgVector.Schema)
		}
		return nil
	case ProviderChromem:
		return nil
	case ProviderQdrant:
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return fmt.Errorf("vector_db.qdrant.host is required")
		}
		return nil
	case ProviderPinecone:
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return fmt.Errorf("vector_db.pinecone.api_key is required")
		}
		if c.Pinecone.IndexName == "" {
			return fmt.Errorf("vector_db.pinecone.index_name is required")
		}
		return nil
	case "":
		return fmt.Errorf("vector_db.type is required")
	default:
		return fmt.Errorf("unknown vector_db.type %q (valid: pgvector, chromem, qdrant, pinecone)", c.Type)
	}
}
