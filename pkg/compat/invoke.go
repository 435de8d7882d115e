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

package compat

import (
	"context"
	"errors"
	"log/slog"
)

// InvokeFunc is the signature shared by every single-turn method.
type InvokeFunc func(ctx context.Context, input any) (any, error)

// AgentFunc lets a plain function stand in for an agent.
type AgentFunc func(ctx context.Context, input any) (any, error)

// Asker is an agent answering through Ask.
type Asker interface {
	Ask(ctx context.Context, input any) (any, error)
}

// Responder is an agent answering through Respond.
type Responder interface {
	Respond(ctx context.Context, input any) (any, error)
}

// Runner is an agent answering through Run.
type Runner interface {
	Run(ctx context.Context, input any) (any, error)
}

// Chatter is an agent answering through Chat.
type Chatter interface {
	Chat(ctx context.Context, input any) (any, error)
}

// Completer is an agent answering through Complete.
type Completer interface {
	Complete(ctx context.Context, input any) (any, error)
}

// Generator is an agent answering through Generate.
type Generator interface {
	Generate(ctx context.Context, input any) (any, error)
}

// Caller is an agent answering through Call.
type Caller interface {
	Call(ctx context.Context, input any) (any, error)
}

// Invoker is an agent answering through Invoke.
type Invoker interface {
	Invoke(ctx context.Context, input any) (any, error)
}

// Method binds one candidate method name to an agent value.
type Method struct {
	Name string
	Bind func(agent any) (InvokeFunc, bool)
}

// InvocationMethods are tried in order.
var InvocationMethods = []Method{
	{"Ask", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Asker)
		if !ok {
			return nil, false
		}
		return x.Ask, true
	}},
	{"Respond", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Responder)
		if !ok {
			return nil, false
		}
		return x.Respond, true
	}},
	{"Run", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Runner)
		if !ok {
			return nil, false
		}
		return x.Run, true
	}},
	{"Chat", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Chatter)
		if !ok {
			return nil, false
		}
		return x.Chat, true
	}},
	{"Complete", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Completer)
		if !ok {
			return nil, false
		}
		return x.Complete, true
	}},
	{"Generate", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Generator)
		if !ok {
			return nil, false
		}
		return x.Generate, true
	}},
	{"Call", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Caller)
		if !ok {
			return nil, false
		}
		return x.Call, true
	}},
	{"Invoke", func(a any) (InvokeFunc, bool) {
		x, ok := a.(Invoker)
		if !ok {
			return nil, false
		}
		return x.Invoke, true
	}},
}

type invokeOptions struct {
	methods  []Method
	tolerant bool
}

// InvokeOption configures Invoke.
type InvokeOption func(*invokeOptions)

// Tolerant makes every method error move on to the next candidate
// instead of being returned.
func Tolerant() InvokeOption {
	return func(o *invokeOptions) {
		o.tolerant = true
	}
}

// WithMethods replaces the candidate list.
func WithMethods(methods []Method) InvokeOption {
	return func(o *invokeOptions) {
		o.methods = methods
	}
}

// Invoke sends prompt to agent through the first candidate method it
// implements.
//
// Each method is called with the raw prompt; an ErrInputType reply is
// retried once with Payload{"text": prompt}, and a failing retry moves to
// the next method. Any other error from the raw call is returned
// unchanged unless Tolerant is set. When no method succeeds, an agent
// that is itself an AgentFunc is called directly. Otherwise the result is
// an *IncompatibleError.
func Invoke(ctx context.Context, agent any, prompt string, opts ...InvokeOption) (any, error) {
	o := invokeOptions{methods: InvocationMethods}
	for _, opt := range opts {
		opt(&o)
	}

	var tried []string
	for _, m := range o.methods {
		fn, ok := m.Bind(agent)
		if !ok {
			continue
		}
		tried = append(tried, m.Name)

		out, err := call(m.Name, func() (any, error) { return fn(ctx, prompt) })
		if err == nil {
			return out, nil
		}

		if errors.Is(err, ErrInputType) {
			out, err = call(m.Name, func() (any, error) { return fn(ctx, Payload{"text": prompt}) })
			if err == nil {
				return out, nil
			}
			slog.Debug("Agent method rejected payload", "method", m.Name, "error", err)
			continue
		}

		if !o.tolerant {
			return nil, err
		}
		slog.Debug("Agent method failed", "method", m.Name, "error", err)
	}

	if fn, ok := callable(agent); ok {
		tried = append(tried, "func")
		out, err := call("func", func() (any, error) { return fn(ctx, prompt) })
		if err == nil {
			return out, nil
		}
		slog.Debug("Callable agent failed", "error", err)
	}

	return nil, &IncompatibleError{Kind: KindAgent, Tried: tried, Err: ErrNoMethod}
}

func callable(agent any) (InvokeFunc, bool) {
	switch fn := agent.(type) {
	case AgentFunc:
		return InvokeFunc(fn), fn != nil
	case InvokeFunc:
		return fn, fn != nil
	case func(context.Context, any) (any, error):
		return fn, fn != nil
	}
	return nil, false
}
