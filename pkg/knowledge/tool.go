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

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/pdfassist/pkg/llm"
)

// SearchToolName is the function name the model calls to search.
const SearchToolName = "search_knowledge_base"

// SearchTool exposes Lookup as a model-callable function.
type SearchTool struct {
	base *Base
}

// SearchTool returns the search_knowledge_base tool bound to b.
func (b *Base) SearchTool() *SearchTool {
	return &SearchTool{base: b}
}

// Definition describes the tool to the model.
func (t *SearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        SearchToolName,
		Description: "Use this function to search the knowledge base for information about a query.",
		Parameters:  SearchSchema(),
	}
}

// SearchSchema is the JSON schema of SearchRequest as a plain map.
func SearchSchema() map[string]any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&SearchRequest{})
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("knowledge: marshal search schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("knowledge: unmarshal search schema: %v", err))
	}
	return out
}

// Call runs the search and returns the documents as JSON, or a short
// notice when nothing matched.
func (t *SearchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	var req SearchRequest
	if err := decodeRequest(args, &req); err != nil {
		return "", err
	}
	if req.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	docs, err := t.base.Lookup(ctx, req.Query, req.Limit)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "No documents found", nil
	}

	out, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("failed to encode documents: %w", err)
	}
	return string(out), nil
}
