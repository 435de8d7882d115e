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
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

const pineconeContentKey = "content"

// PineconeConfig configures the Pinecone backend. Collections map to
// namespaces inside IndexName.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host,omitempty"`
	IndexName string `yaml:"index_name"`
}

// PineconeProvider stores records in a serverless Pinecone index.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string

	mu        sync.Mutex
	indexHost string
}

func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeProvider{client: client, indexName: cfg.IndexName}, nil
}

func (p *PineconeProvider) Name() string {
	return string(ProviderPinecone)
}

func (p *PineconeProvider) connect(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	host := p.indexHost
	p.mu.Unlock()

	if host == "" {
		index, err := p.client.DescribeIndex(ctx, p.indexName)
		if err != nil {
			return nil, fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
		}
		host = index.Host
		p.mu.Lock()
		p.indexHost = host
		p.mu.Unlock()
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return conn, nil
}

// CreateCollection only checks that the index exists; namespaces are
// created implicitly on first write.
func (p *PineconeProvider) CreateCollection(ctx context.Context, _ string, _ int) error {
	if _, err := p.client.DescribeIndex(ctx, p.indexName); err != nil {
		return wrapErr(p.Name(), "create collection",
			fmt.Errorf("index %s must be created in Pinecone first: %w", p.indexName, err))
	}
	return nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return wrapErr(p.Name(), "upsert", err)
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, r := range records {
		fields := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			fields[k] = v
		}
		fields[pineconeContentKey] = r.Content

		meta, err := structpb.NewStruct(fields)
		if err != nil {
			return wrapErr(p.Name(), "upsert", fmt.Errorf("metadata of %s: %w", r.ID, err))
		}
		vectors = append(vectors, &pinecone.Vector{Id: r.ID, Values: r.Vector, Metadata: meta})
	}

	_, err = conn.UpsertVectors(ctx, vectors)
	return wrapErr(p.Name(), "upsert", err)
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return nil, wrapErr(p.Name(), "search", err)
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, wrapErr(p.Name(), "search", err)
	}
	return convertPineconeResults(resp.Matches), nil
}

func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return wrapErr(p.Name(), "delete collection", err)
	}
	defer conn.Close()
	return wrapErr(p.Name(), "delete collection", conn.DeleteAllVectorsInNamespace(ctx))
}

func (p *PineconeProvider) Close() error {
	return nil
}

func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Vector == nil {
			continue
		}
		metadata := map[string]any{}
		if m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}
		content, _ := metadata[pineconeContentKey].(string)
		delete(metadata, pineconeContentKey)

		results = append(results, Result{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Content:  content,
			Metadata: metadata,
		})
	}
	return results
}

var _ Provider = (*PineconeProvider)(nil)
