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

// Package knowledge indexes documents fetched from URLs into a vector
// store and searches them.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/pdfassist/pkg/compat"
	"github.com/kadirpekel/pdfassist/pkg/embedder"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

const tracerName = "github.com/kadirpekel/pdfassist/pkg/knowledge"

// Document is one retrieved chunk.
type Document struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"meta_data,omitempty"`
	Score    float32        `json:"score,omitempty"`
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Recreate drops the collection before loading.
	Recreate bool
	// Upsert reloads URLs that were already loaded by this Base.
	Upsert bool
	// URLs restricts the load to a subset; empty means every URL.
	URLs []string
}

// Option customises a Base.
type Option func(*Base)

// WithReader replaces the default HTTP reader.
func WithReader(r *Reader) Option {
	return func(b *Base) { b.reader = r }
}

// WithCollection sets the vector collection name.
func WithCollection(name string) Option {
	return func(b *Base) { b.collection = name }
}

// Base is a URL-backed knowledge base.
type Base struct {
	cfg        Config
	embedder   embedder.Embedder
	db         vector.Provider
	reader     *Reader
	collection string

	mu     sync.RWMutex
	urls   []string
	loaded map[string]struct{}
}

// New binds a knowledge base to an embedder and vector store. cfg should
// already have defaults applied.
func New(cfg Config, emb embedder.Embedder, db vector.Provider, opts ...Option) (*Base, error) {
	if emb == nil {
		return nil, errors.New("knowledge base requires an embedder")
	}
	if db == nil {
		return nil, errors.New("knowledge base requires a vector store")
	}

	b := &Base{
		cfg:        cfg,
		embedder:   emb,
		db:         db,
		collection: vector.DefaultCollection,
		loaded:     make(map[string]struct{}),
	}
	for _, u := range cfg.URLs {
		if !slices.Contains(b.urls, u) {
			b.urls = append(b.urls, u)
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.reader == nil {
		b.reader = NewReader(nil, cfg.MaxBytes)
	}
	return b, nil
}

// URLs returns a copy of the indexed URL list.
func (b *Base) URLs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.urls)
}

// AppendURL adds u to the URL list and reports whether it was new.
func (b *Base) AppendURL(u string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slices.Contains(b.urls, u) {
		return false
	}
	b.urls = append(b.urls, u)
	return true
}

// VectorDB returns the backing vector store.
func (b *Base) VectorDB() vector.Provider {
	return b.db
}

// Collection returns the vector collection name.
func (b *Base) Collection() string {
	return b.collection
}

// Load fetches, chunks, embeds and stores the configured URLs.
func (b *Base) Load(ctx context.Context, opts LoadOptions) (err error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "knowledge.load")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if opts.Recreate {
		if err := b.db.DeleteCollection(ctx, b.collection); err != nil && !errors.Is(err, vector.ErrCollectionNotFound) {
			slog.Warn("Failed to drop collection", "collection", b.collection, "error", err)
		}
		b.mu.Lock()
		clear(b.loaded)
		b.mu.Unlock()
	}
	if err := b.db.CreateCollection(ctx, b.collection, b.embedder.Dimension()); err != nil {
		return err
	}

	targets := b.targets(opts)
	span.SetAttributes(attribute.Int("knowledge.urls", len(targets)))
	if len(targets) == 0 {
		slog.Debug("Knowledge base already loaded", "collection", b.collection)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for _, u := range targets {
		g.Go(func() error {
			n, err := b.loadURL(gctx, u)
			if err != nil {
				return err
			}
			b.mu.Lock()
			b.loaded[u] = struct{}{}
			b.mu.Unlock()
			slog.Info("Indexed document", "url", u, "chunks", n, "collection", b.collection)
			return nil
		})
	}
	return g.Wait()
}

func (b *Base) targets(opts LoadOptions) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	candidates := opts.URLs
	if len(candidates) == 0 {
		candidates = b.urls
	}
	var out []string
	for _, u := range candidates {
		if _, done := b.loaded[u]; done && !opts.Upsert {
			continue
		}
		if !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

func (b *Base) loadURL(ctx context.Context, u string) (int, error) {
	src, err := b.reader.Read(ctx, u)
	if err != nil {
		return 0, err
	}

	var (
		texts []string
		recs  []vector.Record
	)
	for _, page := range src.Pages {
		for _, chunk := range Chunk(page.Text, b.cfg.ChunkSize, b.cfg.ChunkOverlap) {
			idx := len(recs)
			texts = append(texts, chunk)
			recs = append(recs, vector.Record{
				ID:      ChunkID(u, idx),
				Content: chunk,
				Metadata: map[string]any{
					"name":  src.Name,
					"url":   u,
					"page":  page.Number,
					"chunk": idx,
				},
			})
		}
	}
	if len(recs) == 0 {
		return 0, &LoadError{URL: u, Op: "parse", Err: errors.New("document contains no text")}
	}

	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, &LoadError{URL: u, Op: "embed", Err: err}
	}
	for i := range recs {
		recs[i].Vector = vecs[i]
	}

	if err := b.db.Upsert(ctx, b.collection, recs); err != nil {
		return 0, &LoadError{URL: u, Op: "store", Err: err}
	}
	return len(recs), nil
}

// ChunkID is the stable record ID for chunk idx of u, so reloading a URL
// overwrites its previous chunks.
func ChunkID(u string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", u, idx))).String()
}

// Lookup embeds query and returns up to limit matching chunks. A
// non-positive limit uses the configured default.
func (b *Base) Lookup(ctx context.Context, query string, limit int) (docs []Document, err error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "knowledge.search")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if limit <= 0 {
		limit = b.cfg.NumDocuments
	}
	span.SetAttributes(attribute.Int("knowledge.limit", limit))

	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &SearchError{Component: "embedder", Query: query, Err: err}
	}
	results, err := b.db.Search(ctx, b.collection, vec, limit)
	if err != nil {
		if errors.Is(err, vector.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, &SearchError{Component: "vector_db", Query: query, Err: err}
	}

	docs = make([]Document, 0, len(results))
	for _, r := range results {
		name, _ := r.Metadata["name"].(string)
		docs = append(docs, Document{
			ID:       r.ID,
			Name:     name,
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    r.Score,
		})
	}
	span.SetAttributes(attribute.Int("knowledge.results", len(docs)))
	return docs, nil
}

// SearchRequest is the structured form of a search input.
type SearchRequest struct {
	Query string `json:"query" mapstructure:"query" jsonschema:"required,description=Text to search the knowledge base for"`
	Limit int    `json:"limit,omitempty" mapstructure:"limit" jsonschema:"description=Maximum number of documents to return,minimum=1,maximum=20"`
}

// Search accepts either a query string or a payload such as
// {"query": "pad thai", "limit": 3} and returns []Document.
func (b *Base) Search(ctx context.Context, input any, opts ...compat.SearchOption) (any, error) {
	var req SearchRequest
	switch v := input.(type) {
	case string:
		req.Query = v
	case compat.Payload:
		if err := decodeRequest(map[string]any(v), &req); err != nil {
			return nil, err
		}
	case map[string]any:
		if err := decodeRequest(v, &req); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: search input %T", compat.ErrInputType, input)
	}
	if req.Query == "" {
		return nil, fmt.Errorf("%w: empty query", compat.ErrInputType)
	}

	o := compat.ApplySearchOptions(compat.SearchOptions{TopK: req.Limit}, opts...)
	return b.Lookup(ctx, req.Query, o.TopK)
}

func decodeRequest(in map[string]any, out *SearchRequest) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", compat.ErrInputType, err)
	}
	return nil
}

var _ compat.Searcher = (*Base)(nil)
