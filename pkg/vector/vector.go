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

// Package vector stores chunk embeddings and answers nearest-neighbour
// queries against them.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// Record is one embedded chunk to store.
type Record struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Result is one scored match returned by Search.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Provider is a vector database backend. Collections are created lazily
// by CreateCollection and addressed by name in every other call.
type Provider interface {
	// Name returns the backend identifier (e.g. "pgvector").
	Name() string

	// CreateCollection makes sure the collection exists. It is a no-op
	// when the collection is already present.
	CreateCollection(ctx context.Context, collection string, dimension int) error

	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Search returns up to topK records closest to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// DeleteCollection drops the collection and all of its records.
	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}

// ErrCollectionNotFound is returned when a search targets a collection
// that was never created.
var ErrCollectionNotFound = errors.New("collection not found")

// ProviderError wraps a backend failure with the provider and operation.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func wrapErr(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
