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

// Package extract recovers user-facing text from loosely structured
// agent responses.
//
// A response may be a string, a map, or a struct exposing Content,
// Messages or Events. Text tries the known shapes in a fixed order and
// falls back to the value's string form. It never panics.
package extract

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// Roles whose content is surfaced from message lists.
const (
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// partSeparator joins the content of several messages.
const partSeparator = "\n\n"

var directKeys = []string{"text", "content", "answer", "result"}

// Text returns the best-effort textual content of v.
//
// Order, first match wins:
//  1. v is a string
//  2. map key text, content, answer or result holding a string
//  3. map "choices"[0].text, or "choices"[0].message.content
//  4. map "messages": assistant and tool contents joined by a blank line
//  5. a truthy Content field or method
//  6. Messages or Events sequence, filtered as in 4
//  7. the string form of v
func Text(v any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Response extraction failed", "panic", r, "type", fmt.Sprintf("%T", v))
			out = Stringify(v)
		}
	}()

	if s, ok := text(v); ok {
		return s
	}
	return Stringify(v)
}

func text(v any) (string, bool) {
	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return "", true
	}

	if s, ok := asString(rv); ok {
		return s, true
	}

	if rv.Kind() == reflect.Map {
		return fromMapping(rv)
	}

	if content, ok := attr(rv, "content"); ok && Truthy(content) {
		return Stringify(content.Interface()), true
	}

	for _, name := range []string{"messages", "events"} {
		msgs, ok := attr(rv, name)
		if !ok || !Truthy(msgs) {
			continue
		}
		if s, ok := joinRoleContent(msgs); ok {
			return s, true
		}
		break
	}

	return "", false
}

func fromMapping(m reflect.Value) (string, bool) {
	for _, key := range directKeys {
		if val, ok := lookup(m, key); ok {
			if s, ok := asString(val); ok {
				return s, true
			}
		}
	}

	if choices, ok := lookup(m, "choices"); ok && isSequence(choices) && choices.Len() > 0 {
		first, ok := deref(choices.Index(0))
		if ok && first.Kind() == reflect.Map {
			if t, ok := lookup(first, "text"); ok {
				return valueString(t), true
			}
			if msg, ok := lookup(first, "message"); ok && msg.Kind() == reflect.Map {
				if content, ok := lookup(msg, "content"); ok {
					return valueString(content), true
				}
			}
		}
	}

	if msgs, ok := lookup(m, "messages"); ok {
		if s, ok := joinRoleContent(msgs); ok {
			return s, true
		}
	}

	return "", false
}

// joinRoleContent collects truthy content of assistant and tool entries.
func joinRoleContent(seq reflect.Value) (string, bool) {
	seq, ok := deref(seq)
	if !ok || !isSequence(seq) {
		return "", false
	}

	var parts []string
	for i := 0; i < seq.Len(); i++ {
		entry, ok := deref(seq.Index(i))
		if !ok {
			continue
		}

		var role, content reflect.Value
		if entry.Kind() == reflect.Map {
			role, _ = lookup(entry, "role")
			content, _ = lookup(entry, "content")
		} else {
			role, _ = attr(entry, "role")
			content, _ = attr(entry, "content")
		}

		if !content.IsValid() || !Truthy(content) {
			continue
		}
		r, ok := asString(role)
		if !ok || (r != roleAssistant && r != roleTool) {
			continue
		}
		parts = append(parts, Stringify(content.Interface()))
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, partSeparator), true
}

// Texts returns the non-empty texts of up to limit items of v. A value
// that is not a sequence is treated as a single item. It never panics.
func Texts(v any, limit int) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Result iteration failed", "panic", r, "type", fmt.Sprintf("%T", v))
			out = nil
			if t := Text(v); t != "" {
				out = []string{t}
			}
		}
	}()

	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return nil
	}
	if !isSequence(rv) {
		if t := Text(v); t != "" {
			return []string{t}
		}
		return nil
	}
	for i := 0; i < rv.Len() && len(out) < limit; i++ {
		item := rv.Index(i)
		if !item.CanInterface() {
			continue
		}
		if t := Text(item.Interface()); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Stringify returns the string form of v, or "" for nil or when the
// value's String method panics.
func Stringify(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = ""
		}
	}()

	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return ""
	}
	if str, ok := asString(rv); ok {
		return str
	}

	switch x := v.(type) {
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Truthy reports whether v would count as a present, non-empty value:
// not nil, not a zero scalar, not an empty string, slice or map.
func Truthy(v any) bool {
	rv, ok := v.(reflect.Value)
	if !ok {
		rv = reflect.ValueOf(v)
	}
	return truthy(rv)
}

func truthy(rv reflect.Value) bool {
	rv, ok := deref(rv)
	if !ok {
		return false
	}
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	default:
		return true
	}
}

// deref unwraps interfaces and pointers. ok is false for nil.
func deref(rv reflect.Value) (reflect.Value, bool) {
	for rv.IsValid() && (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return rv, false
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return reflect.Value{}, false
		}
	}
	return rv, true
}

func asString(rv reflect.Value) (string, bool) {
	rv, ok := deref(rv)
	if !ok {
		return "", false
	}
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return string(rv.Bytes()), true
	}
	return "", false
}

func valueString(rv reflect.Value) string {
	if s, ok := asString(rv); ok {
		return s
	}
	if !rv.IsValid() || !rv.CanInterface() {
		return ""
	}
	return Stringify(rv.Interface())
}

func isSequence(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// lookup reads a string key from a map with string-kinded keys.
func lookup(m reflect.Value, key string) (reflect.Value, bool) {
	m, ok := deref(m)
	if !ok || m.Kind() != reflect.Map || m.Type().Key().Kind() != reflect.String {
		return reflect.Value{}, false
	}
	val := m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
	if !val.IsValid() {
		return reflect.Value{}, false
	}
	if val.Kind() == reflect.Interface {
		if val.IsNil() {
			return reflect.ValueOf((*any)(nil)), true
		}
		val = val.Elem()
	}
	return val, true
}

// attr reads a named attribute from a struct: an exported field matched
// by name or json tag, then a Get<Name> or <Name> method with no arguments.
func attr(rv reflect.Value, name string) (reflect.Value, bool) {
	orig := rv
	rv, ok := deref(rv)
	if !ok {
		return reflect.Value{}, false
	}

	if rv.Kind() == reflect.Struct {
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if strings.EqualFold(f.Name, name) || tag == name {
				return rv.Field(i), true
			}
		}
	}

	title := strings.ToUpper(name[:1]) + name[1:]
	for _, candidate := range []reflect.Value{orig, rv, pointerTo(rv)} {
		if !candidate.IsValid() || !candidate.CanInterface() {
			continue
		}
		for _, method := range []string{"Get" + title, title} {
			m := candidate.MethodByName(method)
			if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() == 0 {
				continue
			}
			out := m.Call(nil)
			if len(out) == 2 {
				if err, _ := out[1].Interface().(error); err != nil {
					return reflect.Value{}, false
				}
			}
			return out[0], true
		}
	}

	return reflect.Value{}, false
}

// pointerTo returns a pointer to rv so pointer-receiver methods are
// reachable. Non-addressable values are copied.
func pointerTo(rv reflect.Value) reflect.Value {
	if rv.Kind() == reflect.Pointer {
		return reflect.Value{}
	}
	if rv.CanAddr() {
		return rv.Addr()
	}
	if !rv.CanInterface() {
		return reflect.Value{}
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p
}
