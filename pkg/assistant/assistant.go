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

// Package assistant answers questions over indexed PDFs and indexes new
// ones. Every entry point returns a result value; errors and panics below
// it are reported in the result, never returned or propagated.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/pdfassist/pkg/compat"
	"github.com/kadirpekel/pdfassist/pkg/extract"
	"github.com/kadirpekel/pdfassist/pkg/knowledge"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/utils"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

const tracerName = "pdfassist/assistant"

const (
	contextSeparator = "\n\n---\n\n"
	maxContextTexts  = 4
	fallbackTemplate = "Use the following documents as context to answer the user's query.\n\n%s\n\nUser query: %s"
)

// KnowledgeStore is the part of a knowledge base every store must offer.
// Retrieval is probed through compat.Retrieve.
type KnowledgeStore interface {
	Load(ctx context.Context, opts knowledge.LoadOptions) error
}

// URLList is implemented by stores whose URL list can grow in place.
type URLList interface {
	URLs() []string
	AppendURL(u string) bool
}

// VectorDBHolder is implemented by stores that expose their vector store.
type VectorDBHolder interface {
	VectorDB() vector.Provider
}

// AgentOptions are passed to AgentFactory.
type AgentOptions struct {
	// Knowledge is nil for the no-tools recovery agent.
	Knowledge       KnowledgeStore
	SearchKnowledge bool
	ShowToolCalls   bool
	ReadChatHistory bool
	UserID          string
	SessionID       string
}

// AgentFactory builds an agent. The result is probed with compat.Invoke.
type AgentFactory func(ctx context.Context, opts AgentOptions) (any, error)

// StoreFactory builds a knowledge store for urls. db is nil when no
// existing vector store can be reused.
type StoreFactory func(ctx context.Context, urls []string, db vector.Provider) (KnowledgeStore, error)

// Deps is everything the service needs. The bootstrapping process owns
// the lifecycle of each collaborator.
type Deps struct {
	// Knowledge is the shared store. May be nil.
	Knowledge KnowledgeStore
	NewAgent  AgentFactory
	NewStore  StoreFactory

	UserID string

	// Model names the encoding used to budget fallback context.
	Model string

	// FallbackContextTokens caps inlined fallback context. Zero disables
	// trimming.
	FallbackContextTokens int

	// Tokens overrides the token counter derived from Model.
	Tokens *utils.TokenCounter
}

// QueryOption adjusts the primary agent for one query.
type QueryOption func(*AgentOptions)

// WithSession binds the query to a stored session.
func WithSession(id string) QueryOption {
	return func(o *AgentOptions) { o.SessionID = id }
}

// WithUser sets the session owner.
func WithUser(id string) QueryOption {
	return func(o *AgentOptions) { o.UserID = id }
}

// WithChatHistory makes the agent read prior turns of the session.
func WithChatHistory(on bool) QueryOption {
	return func(o *AgentOptions) { o.ReadChatHistory = on }
}

// WithToolCalls makes the agent render the tool calls it made.
func WithToolCalls(on bool) QueryOption {
	return func(o *AgentOptions) { o.ShowToolCalls = on }
}

// Service is the query orchestrator and indexing operation.
type Service struct {
	deps Deps

	tokensOnce sync.Once
	tokens     *utils.TokenCounter
}

// New validates deps and returns a Service.
func New(deps Deps) (*Service, error) {
	if deps.NewAgent == nil {
		return nil, errors.New("assistant requires an agent factory")
	}
	if deps.NewStore == nil {
		return nil, errors.New("assistant requires a knowledge store factory")
	}
	return &Service{deps: deps, tokens: deps.Tokens}, nil
}

// Knowledge returns the shared store, or nil.
func (s *Service) Knowledge() KnowledgeStore {
	return s.deps.Knowledge
}

// Query answers prompt with a single agent turn. When the model's tool
// call fails, the attempted search is run locally and the model is asked
// again with the documents inlined and no tools.
func (s *Service) Query(ctx context.Context, prompt string, opts ...QueryOption) (res QueryResult) {
	start := time.Now()
	ctx, span := observability.Tracer(tracerName).Start(ctx, "assistant.query")
	defer span.End()

	path := "primary"
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			res = QueryResult{Status: StatusError, Error: err.Error(), Traceback: renderTrace(err, debug.Stack())}
			slog.Error("Query panicked", "error", err)
		}
		span.SetAttributes(attribute.String("assistant.status", res.Status), attribute.String("assistant.path", path))
		if !res.OK() {
			span.SetStatus(codes.Error, res.Error)
		}
		observability.GetGlobalMetrics().RecordQuery(ctx, res.Status, path)
		slog.Debug("Query finished", "status", res.Status, "path", path, "duration", time.Since(start))
	}()

	agentOpts := AgentOptions{
		Knowledge:       s.deps.Knowledge,
		SearchKnowledge: true,
		UserID:          s.deps.UserID,
	}
	for _, opt := range opts {
		opt(&agentOpts)
	}

	out, err := s.ask(ctx, agentOpts, prompt)
	if err == nil {
		return QueryResult{Status: StatusOK, Result: extract.Text(out)}
	}

	var incompatible *compat.IncompatibleError
	if errors.As(err, &incompatible) {
		slog.Error("Agent is not invocable", "error", err)
		return QueryResult{Status: StatusError, Error: err.Error()}
	}

	tb := renderTrace(err, debug.Stack())
	span.RecordError(err)
	slog.Error("Query failed", "error", err)

	failure, perr := ParseToolFailure(err.Error())
	if perr == nil {
		path = "fallback"
		text, ferr := s.fallback(ctx, agentOpts, prompt, failure.Query)
		if ferr == nil {
			observability.GetGlobalMetrics().RecordFallback(ctx, "recovered")
			slog.Info("Recovered failed tool call via local search", "query", failure.Query)
			return QueryResult{Status: StatusOK, Result: text, Note: FallbackNote}
		}
		observability.GetGlobalMetrics().RecordFallback(ctx, "failed")
		slog.Warn("Local search fallback failed", "query", failure.Query, "error", ferr)
	} else {
		slog.Debug("Tool-call failure not recoverable", "reason", perr)
	}

	res = QueryResult{Status: StatusError, Error: err.Error(), Traceback: tb}
	if failure != nil {
		res.FailedGeneration = failure.Fragment
		res.Hint = Hint
	}
	return res
}

func (s *Service) ask(ctx context.Context, opts AgentOptions, prompt string) (any, error) {
	agent, err := s.deps.NewAgent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return compat.Invoke(ctx, agent, prompt)
}

// fallback retrieves documents for query and asks a tool-less agent.
func (s *Service) fallback(ctx context.Context, primary AgentOptions, prompt, query string) (text string, err error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "assistant.fallback",
		trace.WithAttributes(attribute.String("assistant.query", query)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.deps.Knowledge == nil {
		return "", errors.New("no knowledge store to search")
	}

	results, err := compat.Retrieve(ctx, s.deps.Knowledge, query)
	if err != nil {
		return "", err
	}
	texts := extract.Texts(results, maxContextTexts)
	if len(texts) == 0 {
		slog.Debug("Local search found nothing", "query", query)
		return "", errors.New("local search returned no documents")
	}

	docs := s.fitContext(texts)
	agent, err := s.deps.NewAgent(ctx, AgentOptions{
		UserID:    primary.UserID,
		SessionID: primary.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create fallback agent: %w", err)
	}

	out, err := compat.Invoke(ctx, agent, fmt.Sprintf(fallbackTemplate, docs, prompt), compat.Tolerant())
	if err != nil {
		return "", err
	}
	text = extract.Text(out)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("fallback agent returned no text")
	}
	return text, nil
}

func (s *Service) fitContext(texts []string) string {
	if s.deps.FallbackContextTokens <= 0 {
		return strings.Join(texts, contextSeparator)
	}
	s.tokensOnce.Do(func() {
		if s.tokens == nil {
			s.tokens = utils.CounterFor(s.deps.Model)
		}
	})
	docs := s.tokens.FitJoined(texts, contextSeparator, s.deps.FallbackContextTokens)
	slog.Debug("Fallback context", "documents", len(texts), "tokens", s.tokens.Count(docs))
	return docs
}
