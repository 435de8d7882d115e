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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, ProviderPgVector, cfg.Type)
	assert.Equal(t, DefaultCollection, cfg.Collection)
	require.NotNil(t, cfg.PgVector)
	assert.Equal(t, DefaultSchema, cfg.PgVector.Schema)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "bad table name", cfg: Config{Type: ProviderPgVector, Collection: "dishes; drop"}, wantErr: "not a valid table name"},
		{name: "qdrant without host", cfg: Config{Type: ProviderQdrant, Collection: "dishes"}, wantErr: "qdrant.host"},
		{name: "pinecone without key", cfg: Config{Type: ProviderPinecone, Collection: "dishes", Pinecone: &PineconeConfig{IndexName: "x"}}, wantErr: "api_key"},
		{name: "unknown", cfg: Config{Type: "milvus", Collection: "dishes"}, wantErr: "unknown vector_db.type"},
		{name: "chromem ok", cfg: Config{Type: ProviderChromem, Collection: "dishes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[]", formatVector(nil))
	assert.Equal(t, "[1,0.5,-2.25]", formatVector([]float32{1, 0.5, -2.25}))
}

func TestNewProviderRequiresDBForPgVector(t *testing.T) {
	_, err := NewProvider(Config{Type: ProviderPgVector})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection")
}

func TestChromemRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(Config{Type: ProviderChromem})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.CreateCollection(ctx, "dishes", 3))
	require.NoError(t, p.Upsert(ctx, "dishes", []Record{
		{ID: "a", Content: "pad thai", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"page": 3}},
		{ID: "b", Content: "green curry", Vector: []float32{0, 1, 0}},
		{ID: "c", Content: "tom yum", Vector: []float32{0, 0, 1}},
	}))

	results, err := p.Search(ctx, "dishes", []float32{0.9, 0.1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "pad thai", results[0].Content)
	assert.Equal(t, "3", results[0].Metadata["page"])

	// Upsert replaces by ID.
	require.NoError(t, p.Upsert(ctx, "dishes", []Record{
		{ID: "a", Content: "pad see ew", Vector: []float32{1, 0, 0}},
	}))
	results, err = p.Search(ctx, "dishes", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pad see ew", results[0].Content)

	require.NoError(t, p.DeleteCollection(ctx, "dishes"))
	_, err = p.Search(ctx, "dishes", []float32{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, ErrCollectionNotFound))

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "chromem", perr.Provider)
	assert.Equal(t, "search", perr.Op)
}
