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

// Package utils provides token counting for prompt budgets.
package utils

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for models tiktoken does not know, which
// includes every Groq-hosted model.
const DefaultEncoding = "cl100k_base"

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// TokenCounter counts tokens for one model. A counter without an
// encoding estimates four bytes per token.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTokenCounter returns a counter for model, falling back to
// DefaultEncoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: enc, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}
	encodingCache[model] = enc
	return &TokenCounter{encoding: enc, model: model}, nil
}

// CounterFor never fails: when no encoding can be loaded (tiktoken
// fetches BPE ranks on first use) it returns an estimating counter.
func CounterFor(model string) *TokenCounter {
	tc, err := NewTokenCounter(model)
	if err != nil {
		slog.Debug("Token encoding unavailable, estimating", "model", model, "error", err)
		return &TokenCounter{model: model}
	}
	return tc
}

// Model returns the model name this counter is configured for.
func (tc *TokenCounter) Model() string {
	return tc.model
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if tc == nil || tc.encoding == nil {
		if len(text) <= maxTokens*4 {
			return text
		}
		cut := maxTokens * 4
		for cut > 0 && !utf8Start(text[cut]) {
			cut--
		}
		return text[:cut]
	}
	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.ToValidUTF8(tc.encoding.Decode(tokens[:maxTokens]), "")
}

// FitJoined joins parts with sep, keeping whole parts while they fit in
// maxTokens and truncating the first part that does not. A non-positive
// budget disables trimming.
func (tc *TokenCounter) FitJoined(parts []string, sep string, maxTokens int) string {
	joined := strings.Join(parts, sep)
	if maxTokens <= 0 || tc.Count(joined) <= maxTokens {
		return joined
	}

	sepTokens := tc.Count(sep)
	var kept []string
	used := 0
	for _, p := range parts {
		cost := tc.Count(p)
		if len(kept) > 0 {
			cost += sepTokens
		}
		if used+cost <= maxTokens {
			kept = append(kept, p)
			used += cost
			continue
		}
		room := maxTokens - used
		if len(kept) > 0 {
			room -= sepTokens
		}
		if tail := tc.Truncate(p, room); tail != "" {
			kept = append(kept, tail)
		}
		break
	}
	return strings.Join(kept, sep)
}

// EstimateTokens approximates four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
