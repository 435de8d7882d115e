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
	"fmt"
)

// New builds the embedder selected by cfg.Provider. cfg should already
// have defaults applied.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiEmbedder(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	case ProviderOllama:
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider %q", cfg.Provider)
	}
}
