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
	"regexp"
	"strings"
)

const (
	failureMarker   = "failed_generation"
	fragmentOpen    = "<function="
	fragmentClose   = "</function>"
	fragmentMaxRune = 200

	// SearchToolName is the knowledge-search tool the model is given.
	SearchToolName = "search_knowledge_base"
)

var (
	queryPattern = regexp.MustCompile(`search_knowledge_base\s*\{\s*"query"\s*:\s*"([^"]+)"`)
	blockPattern = regexp.MustCompile(`search_knowledge_base\s*\{([^}]*)\}`)
	fieldPattern = regexp.MustCompile(`"query"\s*:\s*"([^"]+)"`)
)

// ToolFailure is what could be scraped from a provider's tool_use_failed
// error.
type ToolFailure struct {
	// Fragment is the raw attempted call, e.g.
	// <function=search_knowledge_base{"query": "pad thai"}</function>.
	Fragment string

	// Query is the search the model meant to run. Empty when it could
	// not be recovered.
	Query string
}

// ParseToolFailure scrapes errText for a failed knowledge-search call.
//
// A non-nil ToolFailure is returned whenever a fragment was found, even
// if the error is non-nil: the fragment is still useful diagnostics. The
// error is always an *UnrecoveredError.
func ParseToolFailure(errText string) (*ToolFailure, error) {
	at := strings.Index(errText, failureMarker)
	if at < 0 {
		return nil, &UnrecoveredError{Reason: ReasonNoMarker}
	}

	fragment := extractFragment(errText[at:])
	if fragment == "" {
		return nil, &UnrecoveredError{Reason: ReasonNoFragment}
	}
	f := &ToolFailure{Fragment: fragment}

	if !strings.Contains(fragment, SearchToolName) {
		return f, &UnrecoveredError{Reason: ReasonOtherTool}
	}

	f.Query = matchQuery(fragment)
	if f.Query == "" && strings.Contains(fragment, `\"`) {
		f.Query = matchQuery(strings.ReplaceAll(fragment, `\"`, `"`))
	}
	if f.Query == "" {
		return f, &UnrecoveredError{Reason: ReasonNoQuery}
	}
	return f, nil
}

// extractFragment returns the <function=...</function> span of s, or its
// first fragmentMaxRune runes.
func extractFragment(s string) string {
	start := strings.Index(s, fragmentOpen)
	end := strings.Index(s, fragmentClose)
	if start >= 0 && end >= start {
		return s[start : end+len(fragmentClose)]
	}

	s = strings.ToValidUTF8(s, "")
	n := 0
	for i := range s {
		if n == fragmentMaxRune {
			return s[:i]
		}
		n++
	}
	return s
}

func matchQuery(fragment string) string {
	if m := queryPattern.FindStringSubmatch(fragment); m != nil {
		return m[1]
	}
	if m := blockPattern.FindStringSubmatch(fragment); m != nil {
		if q := fieldPattern.FindStringSubmatch(m[1]); q != nil {
			return q[1]
		}
	}
	return ""
}
