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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kadirpekel/pdfassist/pkg/agent"
	"github.com/kadirpekel/pdfassist/pkg/compat"
	"github.com/kadirpekel/pdfassist/pkg/knowledge"
	"github.com/kadirpekel/pdfassist/pkg/llm"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const padThaiFailure = "API request failed with status 400: Failed to call a function. Please adjust your prompt. " +
	"(type: invalid_request_error, code: tool_use_failed)\n" +
	`failed_generation: <function=search_knowledge_base{"query": "pad thai"}</function>`

// askAgent exposes only Ask.
type askAgent struct {
	inputs []any
	fn     func(input any) (any, error)
}

func (a *askAgent) Ask(_ context.Context, input any) (any, error) {
	a.inputs = append(a.inputs, input)
	return a.fn(input)
}

// fakeStore has a URL list, a Search method and counts loads.
type fakeStore struct {
	urls    []string
	loads   int
	loadErr error
	docs    any
	queries []string
}

func (f *fakeStore) Load(context.Context, knowledge.LoadOptions) error {
	f.loads++
	return f.loadErr
}

func (f *fakeStore) URLs() []string { return append([]string(nil), f.urls...) }

func (f *fakeStore) AppendURL(u string) bool {
	for _, have := range f.urls {
		if have == u {
			return false
		}
	}
	f.urls = append(f.urls, u)
	return true
}

func (f *fakeStore) Search(_ context.Context, input any, _ ...compat.SearchOption) (any, error) {
	q, err := compat.InputText(input, "query")
	if err != nil {
		return nil, err
	}
	f.queries = append(f.queries, q)
	return f.docs, nil
}

// fixedStore has neither a URL list nor a search method.
type fixedStore struct {
	db    vector.Provider
	loads int
}

func (f *fixedStore) Load(context.Context, knowledge.LoadOptions) error {
	f.loads++
	return nil
}

func (f *fixedStore) VectorDB() vector.Provider { return f.db }

type agents struct {
	primary  any
	fallback any
	seen     []AgentOptions
}

func (a *agents) factory(_ context.Context, opts AgentOptions) (any, error) {
	a.seen = append(a.seen, opts)
	if opts.SearchKnowledge {
		return a.primary, nil
	}
	return a.fallback, nil
}

func noStores(context.Context, []string, vector.Provider) (KnowledgeStore, error) {
	return nil, errors.New("unexpected store construction")
}

func newService(t *testing.T, kb KnowledgeStore, a *agents) *Service {
	t.Helper()
	svc, err := New(Deps{Knowledge: kb, NewAgent: a.factory, NewStore: noStores, UserID: "web"})
	require.NoError(t, err)
	return svc
}

func docs(contents ...string) []knowledge.Document {
	out := make([]knowledge.Document, len(contents))
	for i, c := range contents {
		out[i] = knowledge.Document{ID: fmt.Sprint(i), Name: "ThaiRecipes", Content: c}
	}
	return out
}

func TestQueryReturnsNormalizedText(t *testing.T) {
	primary := &askAgent{fn: func(any) (any, error) {
		return map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "Soak the noodles."}}}}, nil
	}}
	a := &agents{primary: primary}
	kb := &fakeStore{}

	res := newService(t, kb, a).Query(context.Background(), "How do I make pad thai?")

	assert.Equal(t, QueryResult{Status: StatusOK, Result: "Soak the noodles."}, res)
	require.Len(t, a.seen, 1)
	assert.Equal(t, AgentOptions{Knowledge: kb, SearchKnowledge: true, UserID: "web"}, a.seen[0])
}

func TestQueryRetriesWithPayload(t *testing.T) {
	primary := &askAgent{fn: func(input any) (any, error) {
		p, ok := input.(compat.Payload)
		if !ok {
			return nil, fmt.Errorf("%w: want a payload", compat.ErrInputType)
		}
		return "answer to " + p["text"].(string), nil
	}}

	res := newService(t, &fakeStore{}, &agents{primary: primary}).Query(context.Background(), "hi")

	assert.Equal(t, QueryResult{Status: StatusOK, Result: "answer to hi"}, res)
	assert.Equal(t, []any{"hi", compat.Payload{"text": "hi"}}, primary.inputs)
}

func TestQueryIncompatibleAgent(t *testing.T) {
	res := newService(t, &fakeStore{}, &agents{primary: struct{}{}}).Query(context.Background(), "hi")

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "does not expose a known single-turn API")
	assert.Empty(t, res.Traceback)
	assert.Empty(t, res.Hint)
}

func TestQueryRecoversFailedToolCall(t *testing.T) {
	primary := &askAgent{fn: func(any) (any, error) { return nil, errors.New(padThaiFailure) }}
	fallback := &askAgent{fn: func(any) (any, error) {
		return map[string]any{"content": "Use tamarind and fish sauce."}, nil
	}}
	a := &agents{primary: primary, fallback: fallback}
	kb := &fakeStore{docs: docs("Pad Thai: tamarind, fish sauce, rice noodles.", "Pad Thai garnish: peanuts.")}

	res := newService(t, kb, a).Query(context.Background(), "How do I make pad thai?")

	want := QueryResult{Status: StatusOK, Result: "Use tamarind and fish sauce.", Note: FallbackNote}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Query() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"pad thai"}, kb.queries)

	require.Len(t, a.seen, 2)
	assert.Equal(t, AgentOptions{UserID: "web"}, a.seen[1])

	require.Len(t, fallback.inputs, 1)
	prompt := fallback.inputs[0].(string)
	assert.Equal(t,
		"Use the following documents as context to answer the user's query.\n\n"+
			"Pad Thai: tamarind, fish sauce, rice noodles.\n\n---\n\nPad Thai garnish: peanuts."+
			"\n\nUser query: How do I make pad thai?",
		prompt)
}

func TestQueryFallbackUsesAtMostFourDocuments(t *testing.T) {
	primary := &askAgent{fn: func(any) (any, error) { return nil, errors.New(padThaiFailure) }}
	fallback := &askAgent{fn: func(any) (any, error) { return "ok", nil }}
	kb := &fakeStore{docs: docs("d1", "d2", "d3", "d4", "d5", "d6")}

	res := newService(t, kb, &agents{primary: primary, fallback: fallback}).Query(context.Background(), "q")
	require.True(t, res.OK())

	prompt := fallback.inputs[0].(string)
	assert.Contains(t, prompt, "d1\n\n---\n\nd2\n\n---\n\nd3\n\n---\n\nd4\n\nUser query: q")
	assert.NotContains(t, prompt, "d5")
}

func TestQueryFallbackTriesNextMethod(t *testing.T) {
	primary := &askAgent{fn: func(any) (any, error) { return nil, errors.New(padThaiFailure) }}
	fallback := &flakyAgent{}
	kb := &fakeStore{docs: docs("Pad Thai")}

	res := newService(t, kb, &agents{primary: primary, fallback: fallback}).Query(context.Background(), "q")

	assert.Equal(t, QueryResult{Status: StatusOK, Result: "from run", Note: FallbackNote}, res)
}

// flakyAgent fails through Ask and succeeds through Run.
type flakyAgent struct{}

func (flakyAgent) Ask(context.Context, any) (any, error) { return nil, errors.New("rate limited") }
func (flakyAgent) Run(context.Context, any) (any, error) { return "from run", nil }

func TestQueryReportsUnrecoveredToolFailure(t *testing.T) {
	primary := &askAgent{fn: func(any) (any, error) { return nil, errors.New(padThaiFailure) }}
	fallback := &askAgent{fn: func(any) (any, error) { return "unused", nil }}
	kb := &fakeStore{}

	res := newService(t, kb, &agents{primary: primary, fallback: fallback}).Query(context.Background(), "q")

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, padThaiFailure, res.Error)
	assert.Equal(t, `<function=search_knowledge_base{"query": "pad thai"}</function>`, res.FailedGeneration)
	assert.Equal(t, Hint, res.Hint)
	assert.Empty(t, res.Note)
	assert.Contains(t, res.Traceback, "error chain:")
	assert.Equal(t, []string{"pad thai"}, kb.queries)
	assert.Empty(t, fallback.inputs)
}

func TestQueryHintWithoutRecoverableQuery(t *testing.T) {
	failure := `failed_generation: <function=get_weather{"city": "Bangkok"}</function>`
	primary := &askAgent{fn: func(any) (any, error) { return nil, errors.New(failure) }}
	kb := &fakeStore{docs: docs("unused")}

	res := newService(t, kb, &agents{primary: primary}).Query(context.Background(), "q")

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, Hint, res.Hint)
	assert.Empty(t, kb.queries)
}

func TestQueryPlainError(t *testing.T) {
	primary := &askAgent{fn: func(any) (any, error) { return nil, errors.New("connection refused") }}

	res := newService(t, &fakeStore{}, &agents{primary: primary}).Query(context.Background(), "q")

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "connection refused", res.Error)
	assert.NotEmpty(t, res.Traceback)
	assert.Empty(t, res.FailedGeneration)
	assert.Empty(t, res.Hint)
}

func TestQueryRecoversPanics(t *testing.T) {
	svc, err := New(Deps{
		NewAgent: func(context.Context, AgentOptions) (any, error) { panic("factory exploded") },
		NewStore: noStores,
	})
	require.NoError(t, err)

	res := svc.Query(context.Background(), "q")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "panic: factory exploded", res.Error)
	assert.Contains(t, res.Traceback, "goroutine")
}

func TestQueryAgentFactoryError(t *testing.T) {
	svc, err := New(Deps{
		NewAgent: func(context.Context, AgentOptions) (any, error) { return nil, errors.New("no api key") },
		NewStore: noStores,
	})
	require.NoError(t, err)

	res := svc.Query(context.Background(), "q")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "failed to create agent: no api key", res.Error)
}

func TestQueryOptions(t *testing.T) {
	a := &agents{primary: &askAgent{fn: func(any) (any, error) { return "ok", nil }}}
	svc := newService(t, nil, a)

	svc.Query(context.Background(), "q", WithSession("s1"), WithUser("alice"), WithChatHistory(true), WithToolCalls(true))

	require.Len(t, a.seen, 1)
	assert.Equal(t, AgentOptions{
		SearchKnowledge: true,
		ShowToolCalls:   true,
		ReadChatHistory: true,
		UserID:          "alice",
		SessionID:       "s1",
	}, a.seen[0])
}

// scriptedModel fails or answers, recording the last messages it saw.
type scriptedModel struct {
	err   error
	reply string
	last  []llm.Message
}

func (m *scriptedModel) Name() string { return "llama-3.3-70b-versatile" }

func (m *scriptedModel) Generate(_ context.Context, msgs []llm.Message, _ []llm.ToolDefinition) (*llm.Response, error) {
	m.last = msgs
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: m.reply}, nil
}

type stubTool struct{}

func (stubTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: SearchToolName}
}

func (stubTool) Call(context.Context, map[string]any) (string, error) { return "[]", nil }

func TestQueryWithAgentRecoversGroqToolUseFailure(t *testing.T) {
	failing := &scriptedModel{err: &llm.APIError{
		StatusCode:       400,
		Message:          "Failed to call a function. Please adjust your prompt.",
		Type:             "invalid_request_error",
		Code:             "tool_use_failed",
		FailedGeneration: `<function=search_knowledge_base{"query": "green curry"}</function>`,
	}}
	answering := &scriptedModel{reply: "Fry the curry paste in coconut cream."}

	factory := func(_ context.Context, opts AgentOptions) (any, error) {
		cfg := agent.Config{Model: answering, UserID: opts.UserID, SessionID: opts.SessionID}
		if opts.SearchKnowledge {
			cfg.Model = failing
			cfg.Knowledge = stubTool{}
			cfg.SearchKnowledge = true
		}
		return agent.New(cfg)
	}
	kb := &fakeStore{docs: docs("Green curry: fry paste in coconut cream, add chicken.")}
	svc, err := New(Deps{Knowledge: kb, NewAgent: factory, NewStore: noStores, UserID: "web"})
	require.NoError(t, err)

	res := svc.Query(context.Background(), "How do I make green curry?")

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "Fry the curry paste in coconut cream.", res.Result)
	assert.Equal(t, FallbackNote, res.Note)
	assert.Equal(t, []string{"green curry"}, kb.queries)

	require.Len(t, answering.last, 1)
	assert.Equal(t, llm.RoleUser, answering.last[0].Role)
	assert.True(t, strings.HasSuffix(answering.last[0].Content, "User query: How do I make green curry?"))
}

func TestIndexIsIdempotent(t *testing.T) {
	kb := &fakeStore{urls: []string{knowledge.DefaultURL}}
	svc := newService(t, kb, &agents{})

	url := "https://example.com/menu.pdf"
	first := svc.Index(context.Background(), url)
	second := svc.Index(context.Background(), url)

	assert.Equal(t, IndexResult{Status: StatusOK, URL: url}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{knowledge.DefaultURL, url}, kb.urls)
	assert.Equal(t, 2, kb.loads)
}

func TestIndexWithoutSharedStore(t *testing.T) {
	var gotURLs []string
	var gotDB vector.Provider = &vector.ChromemProvider{}
	built := &fixedStore{}
	svc, err := New(Deps{
		NewAgent: (&agents{}).factory,
		NewStore: func(_ context.Context, urls []string, db vector.Provider) (KnowledgeStore, error) {
			gotURLs, gotDB = urls, db
			return built, nil
		},
	})
	require.NoError(t, err)

	res := svc.Index(context.Background(), "https://example.com/a.pdf")

	assert.True(t, res.OK())
	assert.Equal(t, []string{"https://example.com/a.pdf"}, gotURLs)
	assert.Nil(t, gotDB)
	assert.Equal(t, 1, built.loads)
}

func TestIndexReusesVectorDBOfFixedStore(t *testing.T) {
	db, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	shared := &fixedStore{db: db}

	var gotDB vector.Provider
	built := &fixedStore{}
	svc, err := New(Deps{
		Knowledge: shared,
		NewAgent:  (&agents{}).factory,
		NewStore: func(_ context.Context, _ []string, db vector.Provider) (KnowledgeStore, error) {
			gotDB = db
			return built, nil
		},
	})
	require.NoError(t, err)

	res := svc.Index(context.Background(), "https://example.com/a.pdf")

	assert.True(t, res.OK())
	assert.Same(t, db, gotDB)
	assert.Equal(t, 1, built.loads)
	assert.Zero(t, shared.loads)
}

func TestIndexFailures(t *testing.T) {
	kb := &fakeStore{loadErr: &knowledge.LoadError{URL: "u", Op: "fetch", Err: errors.New("unexpected status 404")}}
	svc := newService(t, kb, &agents{})

	res := svc.Index(context.Background(), "u")
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "failed to load u")
	assert.Contains(t, res.Error, "404")
	assert.Contains(t, res.Traceback, "*knowledge.LoadError")

	res = svc.Index(context.Background(), "")
	assert.Equal(t, "url is required", res.Error)

	svc, err := New(Deps{
		NewAgent: (&agents{}).factory,
		NewStore: func(context.Context, []string, vector.Provider) (KnowledgeStore, error) {
			return nil, errors.New("database unreachable")
		},
	})
	require.NoError(t, err)
	res = svc.Index(context.Background(), "u")
	assert.Equal(t, "failed to create knowledge base: database unreachable", res.Error)
}

func TestReload(t *testing.T) {
	kb := &fakeStore{urls: []string{"a", "b"}}
	res := newService(t, kb, &agents{}).Reload(context.Background())
	assert.Equal(t, IndexResult{Status: StatusOK, URLCount: 2}, res)
	assert.Equal(t, 1, kb.loads)

	res = newService(t, nil, &agents{}).Reload(context.Background())
	assert.Equal(t, "no knowledge base configured", res.Error)
}

func TestResultJSON(t *testing.T) {
	b, err := json.Marshal(QueryResult{Status: StatusOK})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","result":""}`, string(b))

	b, err = json.Marshal(QueryResult{Status: StatusError, Error: "boom", Traceback: "tb", Hint: Hint, FailedGeneration: "<function=x</function>"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":"boom","traceback":"tb","failed_generation":"<function=x</function>","hint":"`+Hint+`"}`, string(b))

	b, err = json.Marshal(IndexResult{Status: StatusOK, URL: "u"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","url":"u"}`, string(b))
}

func TestNewRequiresFactories(t *testing.T) {
	_, err := New(Deps{NewStore: noStores})
	assert.Error(t, err)
	_, err = New(Deps{NewAgent: (&agents{}).factory})
	assert.Error(t, err)
}
