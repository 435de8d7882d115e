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

package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx reply from the provider. Its message keeps the
// provider's failed_generation text verbatim so callers can inspect what
// the model tried to emit.
type APIError struct {
	StatusCode       int
	Message          string
	Type             string
	Code             string
	FailedGeneration string
	Body             string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "API request failed with status %d", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Type != "" || e.Code != "" {
		fmt.Fprintf(&b, " (type: %s, code: %s)", e.Type, e.Code)
	}
	if e.FailedGeneration != "" {
		b.WriteString("\nfailed_generation: ")
		b.WriteString(e.FailedGeneration)
	}
	return b.String()
}

// IsToolUseFailure reports whether the provider rejected a malformed tool call.
func (e *APIError) IsToolUseFailure() bool {
	return e.Code == "tool_use_failed" || e.FailedGeneration != ""
}

type errorEnvelope struct {
	Error *struct {
		Message          string          `json:"message"`
		Type             string          `json:"type"`
		Code             json.RawMessage `json:"code"`
		FailedGeneration string          `json:"failed_generation"`
	} `json:"error"`
}

func parseErrorResponse(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return apiErr
	}

	apiErr.Message = env.Error.Message
	apiErr.Type = env.Error.Type
	apiErr.FailedGeneration = env.Error.FailedGeneration

	var code string
	if err := json.Unmarshal(env.Error.Code, &code); err == nil {
		apiErr.Code = code
	} else if len(env.Error.Code) > 0 && string(env.Error.Code) != "null" {
		apiErr.Code = string(env.Error.Code)
	}

	return apiErr
}
