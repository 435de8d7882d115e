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

// Package agent binds a chat model to the knowledge search tool and to
// session storage, and runs single turns with a bounded tool-call loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kadirpekel/pdfassist/pkg/compat"
	"github.com/kadirpekel/pdfassist/pkg/llm"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/storage"
)

const tracerName = "github.com/kadirpekel/pdfassist/pkg/agent"

// Defaults.
const (
	DefaultMaxToolRounds   = 5
	DefaultHistoryMessages = 6
)

// Tool is a function the model may call.
type Tool interface {
	Definition() llm.ToolDefinition
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Config binds an agent. Only Model is required.
type Config struct {
	Model   llm.Model
	Storage storage.Storage

	// Knowledge supplies the search tool used when SearchKnowledge is set.
	Knowledge Tool

	// Tools are always offered to the model.
	Tools []Tool

	SearchKnowledge bool
	ReadChatHistory bool
	ShowToolCalls   bool

	UserID    string
	SessionID string

	Instructions []string

	MaxToolRounds   int
	HistoryMessages int
}

// EventType classifies a run event.
type EventType string

const (
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventResponse   EventType = "response"
)

// Event is one step of a run.
type Event struct {
	Type     EventType
	ToolCall *llm.ToolCall
	Result   string
	Content  string
}

// RunResponse is the outcome of a run.
type RunResponse struct {
	Content   string        `json:"content"`
	Messages  []llm.Message `json:"messages"`
	Events    []Event       `json:"-"`
	Model     string        `json:"model"`
	RunID     string        `json:"run_id"`
	SessionID string        `json:"session_id"`
}

// Agent runs conversational turns.
type Agent struct {
	cfg   Config
	tools map[string]Tool
	defs  []llm.ToolDefinition
}

// New builds an agent. A session ID is generated when none is given.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, errors.New("agent requires a model")
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = DefaultHistoryMessages
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	a := &Agent{cfg: cfg, tools: make(map[string]Tool)}
	tools := cfg.Tools
	if cfg.SearchKnowledge && cfg.Knowledge != nil {
		tools = append([]Tool{cfg.Knowledge}, tools...)
	}
	for _, t := range tools {
		def := t.Definition()
		if _, dup := a.tools[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		a.tools[def.Name] = t
		a.defs = append(a.defs, def)
	}
	return a, nil
}

// SessionID returns the session this agent reads and writes.
func (a *Agent) SessionID() string {
	return a.cfg.SessionID
}

// Respond is the loose single-turn entry point: input is a prompt string
// or a compat.Payload carrying it under "text".
func (a *Agent) Respond(ctx context.Context, input any) (any, error) {
	prompt, err := compat.InputText(input, "text")
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, prompt)
}

// Run executes one turn and returns the final response.
func (a *Agent) Run(ctx context.Context, prompt string) (*RunResponse, error) {
	resp := &RunResponse{
		Model:     a.cfg.Model.Name(),
		RunID:     uuid.NewString(),
		SessionID: a.cfg.SessionID,
	}

	var calls []llm.ToolCall
	for ev, err := range a.stream(ctx, prompt, &resp.Messages) {
		if err != nil {
			return nil, err
		}
		resp.Events = append(resp.Events, ev)
		switch ev.Type {
		case EventToolCall:
			calls = append(calls, *ev.ToolCall)
		case EventResponse:
			resp.Content = ev.Content
		}
	}

	if a.cfg.ShowToolCalls && len(calls) > 0 {
		resp.Content = renderToolCalls(calls) + resp.Content
	}

	a.save(ctx, prompt, resp)
	return resp, nil
}

// RunStream yields events as the turn progresses. The run is not
// persisted to storage.
func (a *Agent) RunStream(ctx context.Context, prompt string) iter.Seq2[Event, error] {
	var msgs []llm.Message
	return a.stream(ctx, prompt, &msgs)
}

func (a *Agent) stream(ctx context.Context, prompt string, transcript *[]llm.Message) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		ctx, span := observability.Tracer(tracerName).Start(ctx, "agent.run")
		defer span.End()
		span.SetAttributes(
			attribute.String("agent.session_id", a.cfg.SessionID),
			attribute.Int("agent.tools", len(a.defs)),
		)

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(Event{}, err)
		}

		msgs := a.buildMessages(ctx, prompt)
		for round := 0; ; round++ {
			var defs []llm.ToolDefinition
			if round < a.cfg.MaxToolRounds {
				defs = a.defs
			}

			reply, err := a.cfg.Model.Generate(ctx, msgs, defs)
			if err != nil {
				fail(err)
				return
			}

			if len(reply.ToolCalls) == 0 || defs == nil {
				msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply.Content})
				*transcript = msgs
				span.SetAttributes(attribute.Int("agent.rounds", round+1))
				yield(Event{Type: EventResponse, Content: reply.Content}, nil)
				return
			}

			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})
			for i := range reply.ToolCalls {
				call := reply.ToolCalls[i]
				if !yield(Event{Type: EventToolCall, ToolCall: &call}, nil) {
					return
				}
				result := a.callTool(ctx, call)
				msgs = append(msgs, llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: result})
				if !yield(Event{Type: EventToolResult, ToolCall: &call, Result: result}, nil) {
					return
				}
			}
		}
	}
}

func (a *Agent) callTool(ctx context.Context, call llm.ToolCall) string {
	tool, ok := a.tools[call.Name]
	if !ok {
		slog.Warn("Model called unknown tool", "tool", call.Name)
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	start := time.Now()
	out, err := tool.Call(ctx, call.Args)
	if err != nil {
		slog.Warn("Tool call failed", "tool", call.Name, "error", err)
		return "Error: " + err.Error()
	}
	slog.Debug("Tool call finished", "tool", call.Name, "duration", time.Since(start), "bytes", len(out))
	return out
}

func (a *Agent) buildMessages(ctx context.Context, prompt string) []llm.Message {
	var msgs []llm.Message
	if system := a.systemPrompt(); system != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	if a.cfg.ReadChatHistory {
		msgs = append(msgs, a.history(ctx)...)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
}

func (a *Agent) systemPrompt() string {
	parts := append([]string(nil), a.cfg.Instructions...)
	if _, ok := a.tools[searchToolName]; ok {
		parts = append(parts, "Search your knowledge base using the "+searchToolName+" tool before answering questions about the documents.")
	}
	return strings.Join(parts, "\n")
}

// searchToolName matches the knowledge base tool.
const searchToolName = "search_knowledge_base"

// history returns the most recent user and assistant turns of the session.
func (a *Agent) history(ctx context.Context) []llm.Message {
	if a.cfg.Storage == nil {
		return nil
	}
	sess, err := a.cfg.Storage.Read(ctx, a.cfg.SessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("Failed to read chat history", "session_id", a.cfg.SessionID, "error", err)
		}
		return nil
	}

	var turns []llm.Message
	for _, m := range sess.Messages {
		if m.Role == llm.RoleUser || (m.Role == llm.RoleAssistant && len(m.ToolCalls) == 0) {
			turns = append(turns, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	if n := a.cfg.HistoryMessages; len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

func (a *Agent) save(ctx context.Context, prompt string, resp *RunResponse) {
	if a.cfg.Storage == nil {
		return
	}
	sess, err := a.cfg.Storage.Read(ctx, a.cfg.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		sess = &storage.Session{ID: a.cfg.SessionID, UserID: a.cfg.UserID}
	} else if err != nil {
		slog.Warn("Failed to load session", "session_id", a.cfg.SessionID, "error", err)
		return
	}

	sess.Messages = append(sess.Messages,
		llm.Message{Role: llm.RoleUser, Content: prompt},
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
	)
	sess.Runs = append(sess.Runs, storage.Run{
		ID:        resp.RunID,
		Input:     prompt,
		Output:    resp.Content,
		Model:     resp.Model,
		CreatedAt: time.Now().UTC(),
	})
	if err := a.cfg.Storage.Upsert(ctx, sess); err != nil {
		slog.Warn("Failed to save session", "session_id", a.cfg.SessionID, "error", err)
	}
}

func renderToolCalls(calls []llm.ToolCall) string {
	var b strings.Builder
	b.WriteString("Running:\n")
	for _, c := range calls {
		fmt.Fprintf(&b, " - %s(%s)\n", c.Name, formatArgs(c.Args))
	}
	b.WriteString("\n")
	return b.String()
}

func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}

var _ compat.Responder = (*Agent)(nil)
