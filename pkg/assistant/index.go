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

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kadirpekel/pdfassist/pkg/knowledge"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

// Index makes sure url is part of a knowledge store and upserts it.
//
// With a shared store that has a URL list, url is appended once and the
// shared store is loaded. Otherwise a store scoped to url is built,
// reusing the shared store's vector database when it exposes one.
func (s *Service) Index(ctx context.Context, url string) (res IndexResult) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "assistant.index")
	defer span.End()
	span.SetAttributes(attribute.String("knowledge.url", url))

	defer s.finishIndex(ctx, span.SetStatus, &res)

	if url == "" {
		return s.indexError(errors.New("url is required"), nil)
	}

	store, err := s.storeFor(ctx, url)
	if err != nil {
		return s.indexError(err, debug.Stack())
	}
	if err := store.Load(ctx, knowledge.LoadOptions{Upsert: true}); err != nil {
		span.RecordError(err)
		return s.indexError(fmt.Errorf("failed to load %s: %w", url, err), debug.Stack())
	}

	slog.Info("Indexed document", "url", url)
	return IndexResult{Status: StatusOK, URL: url}
}

// Reload upserts every URL of the shared store.
func (s *Service) Reload(ctx context.Context) (res IndexResult) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "assistant.reload")
	defer span.End()

	defer s.finishIndex(ctx, span.SetStatus, &res)

	kb := s.deps.Knowledge
	if kb == nil {
		return s.indexError(errors.New("no knowledge base configured"), nil)
	}
	if err := kb.Load(ctx, knowledge.LoadOptions{Upsert: true}); err != nil {
		span.RecordError(err)
		return s.indexError(fmt.Errorf("failed to reload knowledge base: %w", err), debug.Stack())
	}

	res = IndexResult{Status: StatusOK}
	if list, ok := kb.(URLList); ok {
		res.URLCount = len(list.URLs())
	}
	slog.Info("Reloaded knowledge base", "urls", res.URLCount)
	return res
}

func (s *Service) storeFor(ctx context.Context, url string) (KnowledgeStore, error) {
	kb := s.deps.Knowledge
	if kb == nil {
		return s.newStore(ctx, url, nil)
	}

	if list, ok := kb.(URLList); ok {
		if list.AppendURL(url) {
			slog.Debug("Added URL to knowledge base", "url", url)
		}
		return kb, nil
	}

	var db vector.Provider
	if holder, ok := kb.(VectorDBHolder); ok {
		db = holder.VectorDB()
	}
	return s.newStore(ctx, url, db)
}

func (s *Service) newStore(ctx context.Context, url string, db vector.Provider) (KnowledgeStore, error) {
	store, err := s.deps.NewStore(ctx, []string{url}, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge base: %w", err)
	}
	return store, nil
}

func (s *Service) indexError(err error, stack []byte) IndexResult {
	slog.Error("Indexing failed", "error", err)
	return IndexResult{Status: StatusError, Error: err.Error(), Traceback: renderTrace(err, stack)}
}

func (s *Service) finishIndex(ctx context.Context, setStatus func(codes.Code, string), res *IndexResult) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic: %v", r)
		*res = s.indexError(err, debug.Stack())
	}
	if !res.OK() {
		setStatus(codes.Error, res.Error)
	}
	observability.GetGlobalMetrics().RecordIndex(ctx, res.Status)
}
