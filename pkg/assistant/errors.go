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
	"errors"
	"fmt"
	"strings"
)

// UnrecoveredError reports that a tool-call failure could not be turned
// into a retrievable query.
type UnrecoveredError struct {
	Reason string
	Err    error
}

// Reasons carried by UnrecoveredError.
const (
	ReasonNoMarker   = "no failed_generation marker"
	ReasonNoFragment = "no tool-call fragment"
	ReasonOtherTool  = "not a knowledge-search call"
	ReasonNoQuery    = "no query in tool call"
)

func (e *UnrecoveredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool call not recovered (%s): %v", e.Reason, e.Err)
	}
	return "tool call not recovered: " + e.Reason
}

func (e *UnrecoveredError) Unwrap() error {
	return e.Err
}

// renderTrace writes the error chain, one wrapped layer per line,
// followed by the stack captured at the boundary.
func renderTrace(err error, stack []byte) string {
	var b strings.Builder
	b.WriteString("error chain:\n")
	for depth := 0; err != nil; depth++ {
		fmt.Fprintf(&b, "%s%T: %v\n", strings.Repeat("  ", depth), err, err)
		err = errors.Unwrap(err)
	}
	if len(stack) > 0 {
		b.WriteString("\n")
		b.Write(stack)
	}
	return b.String()
}
