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

import "encoding/json"

// Result statuses. Anything other than StatusOK is a failure.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Hint is attached to query failures where a tool-call fragment was found.
const Hint = "The model attempted to call a tool but the tool invocation failed. " +
	"I tried a local fallback (manual search + direct model call). " +
	"If that did not work, ensure the knowledge-base search tool is registered and functional."

// FallbackNote marks answers produced by the recovery path.
const FallbackNote = "returned via local search fallback"

// QueryResult is the outcome of Service.Query.
type QueryResult struct {
	Status           string `json:"status"`
	Result           string `json:"result,omitempty"`
	Error            string `json:"error,omitempty"`
	Traceback        string `json:"traceback,omitempty"`
	FailedGeneration string `json:"failed_generation,omitempty"`
	Hint             string `json:"hint,omitempty"`
	Note             string `json:"note,omitempty"`
}

// OK reports whether the query succeeded.
func (r QueryResult) OK() bool {
	return r.Status == StatusOK
}

// MarshalJSON always writes "result" on success, even when empty.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	type plain QueryResult
	if !r.OK() {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		Status string `json:"status"`
		Result string `json:"result"`
		Note   string `json:"note,omitempty"`
	}{r.Status, r.Result, r.Note})
}

// IndexResult is the outcome of Service.Index and Service.Reload.
type IndexResult struct {
	Status    string `json:"status"`
	URL       string `json:"url,omitempty"`
	URLCount  int    `json:"urls,omitempty"`
	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// OK reports whether indexing succeeded.
func (r IndexResult) OK() bool {
	return r.Status == StatusOK
}
