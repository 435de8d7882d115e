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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kadirpekel/pdfassist/pkg/knowledge"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func setKeys(t *testing.T) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("GOOGLE_API_KEY", "goog_test")
}

func TestParseDefaults(t *testing.T) {
	setKeys(t)

	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, "gsk_test", cfg.LLM.APIKey)
	assert.Equal(t, "gemini", cfg.Embedder.Provider)
	assert.Equal(t, 768, cfg.Embedder.Dimension)
	assert.Equal(t, vector.ProviderPgVector, cfg.VectorDB.Type)
	assert.Equal(t, "dishes", cfg.VectorDB.Collection)
	assert.Equal(t, 768, cfg.VectorDB.Dimension)
	assert.Equal(t, DefaultDatabaseURL, cfg.Database.URL)
	assert.Equal(t, 5532, cfg.Database.Port)
	assert.Equal(t, []string{knowledge.DefaultURL}, cfg.Knowledge.URLs)
	assert.Equal(t, "pdf_assistant", cfg.Storage.Table)

	assert.True(t, BoolValue(cfg.Agent.ShowToolCalls, false))
	assert.True(t, BoolValue(cfg.Agent.SearchKnowledge, false))
	assert.True(t, BoolValue(cfg.Agent.ReadChatHistory, false))
	assert.Equal(t, "web", cfg.Agent.UserID)
	assert.Equal(t, 6000, cfg.Agent.FallbackContextTokens)
	assert.Equal(t, "0.0.0.0:8501", cfg.Server.Address())
}

func TestParseExpandsEnvironment(t *testing.T) {
	setKeys(t)
	t.Setenv("PDF_URL", "https://example.com/menu.pdf")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Parse([]byte(`
agent:
  show_tool_calls: false
  instructions:
    - Be concise.
knowledge:
  urls:
    - ${PDF_URL}
  chunk_size: 500
  chunk_overlap: 50
  fetch_timeout: 30s
server:
  port: ${SERVER_PORT}
database:
  url: ${DATABASE_URL:-sqlite:///:memory:}
vector_db:
  type: chromem
`))
	require.NoError(t, err)

	assert.False(t, BoolValue(cfg.Agent.ShowToolCalls, true))
	assert.True(t, BoolValue(cfg.Agent.SearchKnowledge, false))
	assert.Equal(t, []string{"Be concise."}, cfg.Agent.Instructions)
	assert.Equal(t, []string{"https://example.com/menu.pdf"}, cfg.Knowledge.URLs)
	assert.Equal(t, 500, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Knowledge.FetchTimeout)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.Database)
	assert.Equal(t, vector.ProviderChromem, cfg.VectorDB.Type)
}

func TestParseRejects(t *testing.T) {
	setKeys(t)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "agent:\n  show_tool_call: true\n", "show_tool_call"},
		{"bad yaml", "agent: [", "failed to parse yaml"},
		{"dimension mismatch", "vector_db:\n  dimension: 1536\n", "does not match"},
		{"bad storage", "storage:\n  type: redis\n", "invalid storage type"},
		{"bad log format", "logger:\n  format: xml\n", "invalid log format"},
		{"bad overlap", "knowledge:\n  chunk_size: 100\n  chunk_overlap: 100\n", "chunk_overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRequiresAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "goog_test")

	_, err := Parse(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
}

func TestLoad(t *testing.T) {
	setKeys(t)

	t.Run("explicit missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("default path missing", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "groq", cfg.LLM.Provider)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pdfassist.yaml")
		require.NoError(t, os.WriteFile(path, []byte("agent:\n  user_id: cli\n"), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "cli", cfg.Agent.UserID)
	})
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PA_SET", "value")
	t.Setenv("PA_EMPTY", "")

	assert.Equal(t, "value", ExpandEnv("${PA_SET}"))
	assert.Equal(t, "x-value-y", ExpandEnv("x-$PA_SET-y"))
	assert.Equal(t, "fallback", ExpandEnv("${PA_EMPTY:-fallback}"))
	assert.Equal(t, "value", ExpandEnv("${PA_SET:-fallback}"))
	assert.Equal(t, "", ExpandEnv("${PA_UNSET_VARIABLE}"))
	assert.Equal(t, "plain", ExpandEnv("plain"))

	t.Setenv("PA_NUM", "42")
	got := ExpandEnvInData(map[string]any{"n": "${PA_NUM}", "list": []any{"$PA_SET", 3}})
	assert.Equal(t, map[string]any{"n": 42, "list": []any{"value", 3}}, got)
}
