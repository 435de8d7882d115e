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

package knowledge

import (
	"fmt"
	"time"
)

// DefaultURL is the recipe book indexed when no URLs are configured.
const DefaultURL = "https://phi-public.s3.amazonaws.com/recipes/ThaiRecipes.pdf"

// Config configures the knowledge base.
type Config struct {
	URLs         []string      `yaml:"urls"`
	ChunkSize    int           `yaml:"chunk_size,omitempty"`
	ChunkOverlap int           `yaml:"chunk_overlap,omitempty"`
	NumDocuments int           `yaml:"num_documents,omitempty"`
	Concurrency  int           `yaml:"concurrency,omitempty"`
	MaxBytes     int64         `yaml:"max_bytes,omitempty"`
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.URLs == nil {
		c.URLs = []string{DefaultURL}
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.NumDocuments == 0 {
		c.NumDocuments = 5
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 64 << 20
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 2 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("knowledge.chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("knowledge.chunk_overlap must be in [0, chunk_size)")
	}
	if c.NumDocuments <= 0 {
		return fmt.Errorf("knowledge.num_documents must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("knowledge.concurrency must be positive")
	}
	for i, u := range c.URLs {
		if u == "" {
			return fmt.Errorf("knowledge.urls[%d] is empty", i)
		}
	}
	return nil
}
