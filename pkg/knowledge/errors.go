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

import "fmt"

// LoadError reports a failure to fetch, parse, embed or store one URL.
type LoadError struct {
	URL string
	Op  string // fetch, parse, embed, store
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.URL, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SearchError reports a failed lookup.
type SearchError struct {
	Component string // embedder or vector_db
	Query     string
	Err       error
}

func (e *SearchError) Error() string {
	query := e.Query
	if len(query) > 50 {
		query = query[:50] + "..."
	}
	return fmt.Sprintf("[%s] search failed (query: %q): %v", e.Component, query, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}
