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

package embedder

import (
	"fmt"
	"os"
	"time"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config configures the embedding model.
type Config struct {
	Provider  string        `yaml:"provider,omitempty"`
	Model     string        `yaml:"model,omitempty"`
	Dimension int           `yaml:"dimension,omitempty"`
	APIKey    string        `yaml:"api_key,omitempty"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	TaskType  string        `yaml:"task_type,omitempty"`
	BatchSize int           `yaml:"batch_size,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

type providerDefaults struct {
	model     string
	dimension int
	baseURL   string
	keyEnv    string
	batchSize int
}

var defaults = map[string]providerDefaults{
	ProviderGemini: {model: "gemini-embedding-001", dimension: 768, keyEnv: "GOOGLE_API_KEY", batchSize: 100},
	ProviderOpenAI: {model: "text-embedding-3-small", dimension: 1536, baseURL: "https://api.openai.com/v1", keyEnv: "OPENAI_API_KEY", batchSize: 100},
	ProviderOllama: {model: "nomic-embed-text", dimension: 768, baseURL: "http://localhost:11434", batchSize: 32},
}

func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderGemini
	}
	d, ok := defaults[c.Provider]
	if !ok {
		return
	}
	if c.Model == "" {
		c.Model = d.model
	}
	if c.Dimension == 0 {
		c.Dimension = d.dimension
	}
	if c.BaseURL == "" {
		c.BaseURL = d.baseURL
	}
	if c.APIKey == "" && d.keyEnv != "" {
		c.APIKey = os.Getenv(d.keyEnv)
		if c.APIKey == "" && c.Provider == ProviderGemini {
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.batchSize
	}
	if c.Provider == ProviderGemini && c.TaskType == "" {
		c.TaskType = "RETRIEVAL_DOCUMENT"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

func (c *Config) Validate() error {
	d, ok := defaults[c.Provider]
	if !ok {
		return fmt.Errorf("unsupported embedder provider %q (valid: gemini, openai, ollama)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedder model is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive")
	}
	if c.APIKey == "" && d.keyEnv != "" {
		return fmt.Errorf("embedder api_key is required for %s (set %s)", c.Provider, d.keyEnv)
	}
	return nil
}
