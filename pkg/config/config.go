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

// Package config loads and validates pdfassist configuration.
package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/pdfassist/pkg/embedder"
	"github.com/kadirpekel/pdfassist/pkg/knowledge"
	"github.com/kadirpekel/pdfassist/pkg/llm"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

// DefaultConfigPath is read when no --config flag is given.
const DefaultConfigPath = "pdfassist.yaml"

// Config is the root configuration.
//
// Example:
//
//	llm:
//	  provider: groq
//	  model: llama-3.3-70b-versatile
//	embedder:
//	  provider: gemini
//	vector_db:
//	  type: pgvector
//	  collection: dishes
//	database:
//	  url: ${DATABASE_URL:-postgresql+psycopg://ai:ai@localhost:5532/ai}
//	knowledge:
//	  urls:
//	    - https://phi-public.s3.amazonaws.com/recipes/ThaiRecipes.pdf
type Config struct {
	LLM           llm.Config           `yaml:"llm,omitempty"`
	Embedder      embedder.Config      `yaml:"embedder,omitempty"`
	VectorDB      vector.Config        `yaml:"vector_db,omitempty"`
	Database      DatabaseConfig       `yaml:"database,omitempty"`
	Knowledge     knowledge.Config     `yaml:"knowledge,omitempty"`
	Agent         AgentConfig          `yaml:"agent,omitempty"`
	Storage       StorageConfig        `yaml:"storage,omitempty"`
	Server        ServerConfig         `yaml:"server,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
	Logger        LoggerConfig         `yaml:"logger,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.VectorDB.SetDefaults()
	if c.VectorDB.Dimension == 0 {
		c.VectorDB.Dimension = c.Embedder.Dimension
	}
	c.Database.SetDefaults()
	c.Knowledge.SetDefaults()
	c.Agent.SetDefaults()
	c.Storage.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()
	c.Logger.SetDefaults()
}

// Validate checks every section and prefixes errors with the section name.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		fn   func() error
	}{
		{"llm", c.LLM.Validate},
		{"embedder", c.Embedder.Validate},
		{"vector_db", c.VectorDB.Validate},
		{"knowledge", c.Knowledge.Validate},
		{"agent", c.Agent.Validate},
		{"storage", c.Storage.Validate},
		{"server", c.Server.Validate},
		{"observability", c.Observability.Validate},
		{"logger", c.Logger.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if c.needsDatabase() {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.VectorDB.Dimension != c.Embedder.Dimension {
		return fmt.Errorf("vector_db.dimension (%d) does not match embedder.dimension (%d)",
			c.VectorDB.Dimension, c.Embedder.Dimension)
	}
	return nil
}

func (c *Config) needsDatabase() bool {
	return c.VectorDB.Type == vector.ProviderPgVector || !c.Storage.IsDisabled()
}

// AgentConfig configures the assistant agent.
type AgentConfig struct {
	// ShowToolCalls prefixes chat answers with the tool calls made.
	// Default: true
	ShowToolCalls *bool `yaml:"show_tool_calls,omitempty"`

	// SearchKnowledge gives the agent the search_knowledge_base tool.
	// Default: true
	SearchKnowledge *bool `yaml:"search_knowledge,omitempty"`

	// ReadChatHistory prepends stored turns of the session.
	// Default: true
	ReadChatHistory *bool `yaml:"read_chat_history,omitempty"`

	// UserID owns sessions created by the web and MCP surfaces.
	// Default: web
	UserID string `yaml:"user_id,omitempty"`

	Instructions []string `yaml:"instructions,omitempty"`

	MaxToolRounds   int `yaml:"max_tool_rounds,omitempty"`
	HistoryMessages int `yaml:"history_messages,omitempty"`

	// FallbackContextTokens caps the retrieved context inlined when a
	// tool call fails. Default: 6000
	FallbackContextTokens int `yaml:"fallback_context_tokens,omitempty"`
}

func (c *AgentConfig) SetDefaults() {
	if c.ShowToolCalls == nil {
		c.ShowToolCalls = BoolPtr(true)
	}
	if c.SearchKnowledge == nil {
		c.SearchKnowledge = BoolPtr(true)
	}
	if c.ReadChatHistory == nil {
		c.ReadChatHistory = BoolPtr(true)
	}
	if c.UserID == "" {
		c.UserID = "web"
	}
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = 5
	}
	if c.HistoryMessages == 0 {
		c.HistoryMessages = 6
	}
	if c.FallbackContextTokens == 0 {
		c.FallbackContextTokens = 6000
	}
}

func (c *AgentConfig) Validate() error {
	if c.MaxToolRounds < 0 {
		return fmt.Errorf("max_tool_rounds must be non-negative")
	}
	if c.HistoryMessages < 0 {
		return fmt.Errorf("history_messages must be non-negative")
	}
	if c.FallbackContextTokens < 0 {
		return fmt.Errorf("fallback_context_tokens must be non-negative")
	}
	return nil
}

// StorageConfig configures agent session storage. Sessions share the
// database connection with the vector store.
type StorageConfig struct {
	// Type is "sql" or "memory". Default: sql
	Type   string `yaml:"type,omitempty"`
	Table  string `yaml:"table,omitempty"`
	Schema string `yaml:"schema,omitempty"`
}

func (c *StorageConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "sql"
	}
	if c.Table == "" {
		c.Table = "pdf_assistant"
	}
	if c.Schema == "" {
		c.Schema = "ai"
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Type {
	case "sql", "memory":
		return nil
	default:
		return fmt.Errorf("invalid storage type %q (valid: sql, memory)", c.Type)
	}
}

// IsDisabled reports whether sessions live only in process memory.
func (c *StorageConfig) IsDisabled() bool {
	return c.Type == "memory"
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8501
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggerConfig configures logging behavior.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-file, --log-format)
//  2. Environment variables (LOG_LEVEL, LOG_FILE, LOG_FORMAT)
//  3. Config file (logger section)
//  4. Defaults (info level, simple format, stderr)
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "simple", "verbose", "json":
		return nil
	default:
		return fmt.Errorf("invalid log format %q (valid: simple, verbose, json)", c.Format)
	}
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences b, returning def when b is nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
