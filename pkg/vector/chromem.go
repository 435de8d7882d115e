// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// PersistPath is a directory; empty keeps everything in memory.
	PersistPath string `yaml:"persist_path,omitempty"`

	Compress bool `yaml:"compress,omitempty"`
}

// ChromemProvider is an in-process vector store, handy for local runs
// and tests that should not need PostgreSQL.
type ChromemProvider struct {
	db *chromem.DB
	mu sync.RWMutex

	collections map[string]*chromem.Collection
}

// NewChromemProvider opens (or creates) the store.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, wrapErr(string(ProviderChromem), "open", err)
		}
		slog.Debug("Opened persistent vector store", "path", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
	}

	return &ChromemProvider{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (p *ChromemProvider) Name() string {
	return string(ProviderChromem)
}

// precomputed is installed as the collection embedding func; every
// record and query arrives with its vector already set.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be computed before reaching the vector store")
}

func (p *ChromemProvider) collection(name string, create bool) (*chromem.Collection, error) {
	p.mu.RLock()
	col, ok := p.collections[name]
	p.mu.RUnlock()
	if ok {
		return col, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	if !create {
		col = p.db.GetCollection(name, precomputed)
		if col == nil {
			return nil, ErrCollectionNotFound
		}
	} else {
		var err error
		col, err = p.db.GetOrCreateCollection(name, nil, precomputed)
		if err != nil {
			return nil, err
		}
	}
	p.collections[name] = col
	return col, nil
}

func (p *ChromemProvider) CreateCollection(_ context.Context, collection string, _ int) error {
	_, err := p.collection(collection, true)
	return wrapErr(p.Name(), "create collection", err)
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := p.collection(collection, true)
	if err != nil {
		return wrapErr(p.Name(), "upsert", err)
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  stringMetadata(r.Metadata),
			Embedding: r.Vector,
		})
	}

	return wrapErr(p.Name(), "upsert", col.AddDocuments(ctx, docs, runtime.NumCPU()))
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	col, err := p.collection(collection, false)
	if err != nil {
		return nil, wrapErr(p.Name(), "search", err)
	}

	// chromem rejects nResults larger than the collection.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	matches, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, wrapErr(p.Name(), "search", err)
	}

	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		meta := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		out = append(out, Result{
			ID:       m.ID,
			Score:    m.Similarity,
			Content:  m.Content,
			Metadata: meta,
		})
	}
	return out, nil
}

func (p *ChromemProvider) DeleteCollection(_ context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.collections, collection)
	return wrapErr(p.Name(), "delete collection", p.db.DeleteCollection(collection))
}

func (p *ChromemProvider) Close() error {
	return nil
}

func stringMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case int:
			out[k] = strconv.Itoa(t)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

var _ Provider = (*ChromemProvider)(nil)
