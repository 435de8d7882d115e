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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-embedding-001", cfg.Model)
	assert.Equal(t, 768, cfg.Dimension)
	assert.Equal(t, "gem-key", cfg.APIKey)
	assert.Equal(t, "RETRIEVAL_DOCUMENT", cfg.TaskType)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Provider: "cohere", Model: "x", Dimension: 1}
	assert.ErrorContains(t, cfg.Validate(), "unsupported embedder provider")

	cfg = Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small", Dimension: 1536}
	assert.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")

	cfg = Config{Provider: ProviderOllama, Model: "nomic-embed-text", Dimension: 768}
	assert.NoError(t, cfg.Validate())
}

func TestBatchedPreservesOrder(t *testing.T) {
	var calls int
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(s))}
		}
		return out, nil
	}

	vecs, err := batched(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, 2, fn)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, vecs)

	vecs, err = batched(context.Background(), nil, 2, fn)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestBatchedRejectsShortReplies(t *testing.T) {
	fn := func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	_, err := batched(context.Background(), []string{"a", "b"}, 10, fn)
	assert.ErrorContains(t, err, "1 vectors for 2 inputs")
}

func TestOllamaEmbedder(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := Config{Provider: ProviderOllama, BaseURL: server.URL + "/"}
	cfg.SetDefaults()
	cfg.BatchSize = 2

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.Model())
	assert.Equal(t, 768, e.Dimension())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {0, 1}}, vecs)
	assert.Equal(t, int32(2), requests.Load())

	vec, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestOllamaEmbedderSurfacesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	cfg := Config{Provider: ProviderOllama, BaseURL: server.URL}
	cfg.SetDefaults()

	_, err := NewOllamaEmbedder(cfg).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.2, 0.2]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.1]}
			]
		}`))
	}))
	defer server.Close()

	cfg := Config{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: server.URL}
	cfg.SetDefaults()

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.1}, {0.2, 0.2}}, vecs)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "cohere"})
	assert.ErrorContains(t, err, "unsupported embedder provider")
}
