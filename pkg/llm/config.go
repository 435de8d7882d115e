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

// Package llm talks to OpenAI-compatible chat completion endpoints.
package llm

import (
	"fmt"
	"os"
	"time"
)

// Provider names.
const (
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Config configures a chat model.
type Config struct {
	Provider    string        `yaml:"provider,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Temperature *float64      `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxRetries  int           `yaml:"max_retries,omitempty"`
}

type providerDefaults struct {
	baseURL string
	model   string
	keyEnv  string
}

var defaults = map[string]providerDefaults{
	ProviderGroq:       {"https://api.groq.com/openai/v1", "llama-3.3-70b-versatile", "GROQ_API_KEY"},
	ProviderOpenAI:     {"https://api.openai.com/v1", "gpt-4o-mini", "OPENAI_API_KEY"},
	ProviderOpenRouter: {"https://openrouter.ai/api/v1", "meta-llama/llama-3.3-70b-instruct", "OPENROUTER_API_KEY"},
	ProviderOllama:     {"http://localhost:11434/v1", "llama3.2", ""},
}

func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderGroq
	}
	d, ok := defaults[c.Provider]
	if !ok {
		return
	}
	if c.BaseURL == "" {
		c.BaseURL = d.baseURL
	}
	if c.Model == "" {
		c.Model = d.model
	}
	if c.APIKey == "" && d.keyEnv != "" {
		c.APIKey = os.Getenv(d.keyEnv)
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *Config) Validate() error {
	d, ok := defaults[c.Provider]
	if !ok {
		return fmt.Errorf("unsupported llm provider %q (valid: groq, openai, openrouter, ollama)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIKey == "" && d.keyEnv != "" {
		return fmt.Errorf("api_key is required for %s (set %s)", c.Provider, d.keyEnv)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}
