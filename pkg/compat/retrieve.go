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

package compat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kadirpekel/pdfassist/pkg/extract"
)

// FallbackTopK is the result count hint used by the third calling convention.
const FallbackTopK = 4

// SearchOptions carries optional retrieval hints.
type SearchOptions struct {
	TopK int
}

// SearchOption adjusts SearchOptions.
type SearchOption func(*SearchOptions)

// WithTopK asks for at most k results.
func WithTopK(k int) SearchOption {
	return func(o *SearchOptions) {
		o.TopK = k
	}
}

// ApplySearchOptions folds opts over defaults.
func ApplySearchOptions(defaults SearchOptions, opts ...SearchOption) SearchOptions {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// SearchFunc is the signature shared by every retrieval method.
type SearchFunc func(ctx context.Context, input any, opts ...SearchOption) (any, error)

// Searcher is a store queried through Search.
type Searcher interface {
	Search(ctx context.Context, input any, opts ...SearchOption) (any, error)
}

// Querier is a store queried through Query.
type Querier interface {
	Query(ctx context.Context, input any, opts ...SearchOption) (any, error)
}

// DocumentSearcher is a store queried through SearchDocuments.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, input any, opts ...SearchOption) (any, error)
}

// DocumentQuerier is a store queried through QueryDocuments.
type DocumentQuerier interface {
	QueryDocuments(ctx context.Context, input any, opts ...SearchOption) (any, error)
}

// Retriever is a store queried through Retrieve.
type Retriever interface {
	Retrieve(ctx context.Context, input any, opts ...SearchOption) (any, error)
}

// Finder is a store queried through Find.
type Finder interface {
	Find(ctx context.Context, input any, opts ...SearchOption) (any, error)
}

// RetrievalMethod binds one candidate method name to a store value.
type RetrievalMethod struct {
	Name string
	Bind func(store any) (SearchFunc, bool)
}

// RetrievalMethods are tried in order.
var RetrievalMethods = []RetrievalMethod{
	{"Search", func(s any) (SearchFunc, bool) {
		x, ok := s.(Searcher)
		if !ok {
			return nil, false
		}
		return x.Search, true
	}},
	{"Query", func(s any) (SearchFunc, bool) {
		x, ok := s.(Querier)
		if !ok {
			return nil, false
		}
		return x.Query, true
	}},
	{"SearchDocuments", func(s any) (SearchFunc, bool) {
		x, ok := s.(DocumentSearcher)
		if !ok {
			return nil, false
		}
		return x.SearchDocuments, true
	}},
	{"QueryDocuments", func(s any) (SearchFunc, bool) {
		x, ok := s.(DocumentQuerier)
		if !ok {
			return nil, false
		}
		return x.QueryDocuments, true
	}},
	{"Retrieve", func(s any) (SearchFunc, bool) {
		x, ok := s.(Retriever)
		if !ok {
			return nil, false
		}
		return x.Retrieve, true
	}},
	{"Find", func(s any) (SearchFunc, bool) {
		x, ok := s.(Finder)
		if !ok {
			return nil, false
		}
		return x.Find, true
	}},
}

// Retrieve runs query against store and returns the first non-empty result.
//
// Each candidate method is called as (query). On ErrInputType it is
// retried as (Payload{"query": query}), and if that fails too, as
// (query, WithTopK(FallbackTopK)). Any other error from the first call
// skips to the next method. An empty result from every method yields
// (nil, nil); a store with no known method yields *IncompatibleError.
func Retrieve(ctx context.Context, store any, query string) (any, error) {
	if store == nil {
		return nil, &IncompatibleError{Kind: KindStore, Err: ErrNoMethod}
	}

	var tried []string
	for _, m := range RetrievalMethods {
		fn, ok := m.Bind(store)
		if !ok {
			continue
		}
		tried = append(tried, m.Name)

		results, err := call(m.Name, func() (any, error) { return fn(ctx, query) })
		if err != nil {
			if !errors.Is(err, ErrInputType) {
				slog.Debug("Retrieval method failed", "method", m.Name, "error", err)
				continue
			}
			results, err = call(m.Name, func() (any, error) { return fn(ctx, Payload{"query": query}) })
			if err != nil {
				results, err = call(m.Name, func() (any, error) { return fn(ctx, query, WithTopK(FallbackTopK)) })
				if err != nil {
					results = nil
				}
			}
		}

		if extract.Truthy(results) {
			return results, nil
		}
		slog.Debug("Retrieval method returned nothing", "method", m.Name)
	}

	if len(tried) == 0 {
		return nil, &IncompatibleError{Kind: KindStore, Err: ErrNoMethod}
	}
	return nil, nil
}
