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
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

const qdrantContentKey = "content"

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// QdrantProvider talks to a Qdrant server. Record IDs must be UUIDs.
type QdrantProvider struct {
	client *qdrant.Client
}

func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantProvider{client: client}, nil
}

func (p *QdrantProvider) Name() string {
	return string(ProviderQdrant)
}

func (p *QdrantProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return wrapErr(p.Name(), "create collection", err)
	}
	if exists {
		return nil
	}

	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return wrapErr(p.Name(), "create collection", err)
	}
	return nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload, err := qdrantPayload(r)
		if err != nil {
			return wrapErr(p.Name(), "upsert", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payload,
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return wrapErr(p.Name(), "upsert", err)
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	points, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, wrapErr(p.Name(), "search", err)
	}
	return convertQdrantResults(points), nil
}

func (p *QdrantProvider) DeleteCollection(ctx context.Context, collection string) error {
	return wrapErr(p.Name(), "delete collection", p.client.DeleteCollection(ctx, collection))
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

func qdrantPayload(r Record) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(r.Metadata)+1)
	for key, value := range r.Metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("metadata %q of %s: %w", key, r.ID, err)
		}
		payload[key] = val
	}
	payload[qdrantContentKey] = qdrant.NewValueString(r.Content)
	return payload, nil
}

func convertQdrantResults(points []*qdrant.ScoredPoint) []Result {
	results := make([]Result, 0, len(points))
	for _, point := range points {
		var id string
		if point.GetId() != nil {
			switch v := point.GetId().GetPointIdOptions().(type) {
			case *qdrant.PointId_Uuid:
				id = v.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", v.Num)
			}
		}

		metadata := make(map[string]any, len(point.GetPayload()))
		for key, value := range point.GetPayload() {
			metadata[key] = qdrantValue(value)
		}

		content, _ := metadata[qdrantContentKey].(string)
		delete(metadata, qdrantContentKey)

		results = append(results, Result{
			ID:       id,
			Score:    point.GetScore(),
			Content:  content,
			Metadata: metadata,
		})
	}
	return results
}

func qdrantValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]any, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			list = append(list, qdrantValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		m := make(map[string]any, len(k.StructValue.GetFields()))
		for key, item := range k.StructValue.GetFields() {
			m[key] = qdrantValue(item)
		}
		return m
	default:
		return nil
	}
}

var _ Provider = (*QdrantProvider)(nil)
