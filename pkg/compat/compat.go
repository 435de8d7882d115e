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

// Package compat adapts agents and knowledge stores whose exact method
// set is not known in advance.
//
// Each supported method name is a one-method interface. Invoke and
// Retrieve probe them in a fixed order, so callers depend on two
// functions instead of on any particular agent or store API.
package compat

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInputType is returned by an agent or store method that does not
// accept the shape of input it was given. Invoke and Retrieve react to it
// by retrying with a Payload.
var ErrInputType = errors.New("unsupported input type")

// ErrNoMethod marks a value that exposes none of the known methods.
var ErrNoMethod = errors.New("no known method")

// Payload is the structured form of an input: {"text": prompt} for agents,
// {"query": q} for stores.
type Payload map[string]any

// IncompatibleError reports that a collaborator exposes no usable method.
type IncompatibleError struct {
	Kind  string
	Tried []string
	Err   error
}

func (e *IncompatibleError) Error() string {
	msg := fmt.Sprintf("%s does not expose a known %s API", e.Kind, apiName(e.Kind))
	if len(e.Tried) > 0 {
		msg += " (tried: " + strings.Join(e.Tried, ", ") + ")"
	}
	if e.Err != nil && !errors.Is(e.Err, ErrNoMethod) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompatibleError) Unwrap() error {
	return e.Err
}

func apiName(kind string) string {
	if kind == KindAgent {
		return "single-turn"
	}
	return "retrieval"
}

// Collaborator kinds named in IncompatibleError.
const (
	KindAgent = "agent"
	KindStore = "knowledge store"
)

// InputText returns input as text. A string is returned as is; a Payload
// or map[string]any yields its key field. Anything else is ErrInputType.
func InputText(input any, key string) (string, error) {
	var m map[string]any
	switch v := input.(type) {
	case string:
		return v, nil
	case Payload:
		m = v
	case map[string]any:
		m = v
	default:
		return "", fmt.Errorf("%w: %T", ErrInputType, input)
	}

	s, ok := m[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: payload has no string %q field", ErrInputType, key)
	}
	return s, nil
}

// call runs fn and turns a panic into an error.
func call(name string, fn func() (any, error)) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}
