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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// payloadOnlyAgent rejects raw prompts and answers structured payloads.
type payloadOnlyAgent struct {
	calls []any
}

func (a *payloadOnlyAgent) Respond(_ context.Context, input any) (any, error) {
	a.calls = append(a.calls, input)
	if _, ok := input.(string); ok {
		return nil, ErrInputType
	}
	text, err := InputText(input, "text")
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": "echo: " + text}, nil
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, input any) (any, error) {
	args := m.Called(ctx, input)
	return args.Get(0), args.Error(1)
}

type askAndRun struct {
	askErr error
	ran    bool
}

func (a *askAndRun) Ask(context.Context, any) (any, error) { return nil, a.askErr }

func (a *askAndRun) Run(context.Context, any) (any, error) {
	a.ran = true
	return "from run", nil
}

type panickyAgent struct{}

func (panickyAgent) Chat(context.Context, any) (any, error) { panic("kaboom") }

func TestInvokeRetriesWithPayload(t *testing.T) {
	agent := &payloadOnlyAgent{}

	out, err := Invoke(t.Context(), agent, "pad thai?")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"answer": "echo: pad thai?"}, out)
	require.Len(t, agent.calls, 2)
	assert.Equal(t, "pad thai?", agent.calls[0])
	assert.Equal(t, Payload{"text": "pad thai?"}, agent.calls[1])
}

func TestInvokeReturnsRawCallErrors(t *testing.T) {
	boom := errors.New("API request failed with status 400")
	agent := new(mockRunner)
	agent.On("Run", mock.Anything, "q").Return(nil, boom).Once()

	_, err := Invoke(t.Context(), agent, "q")
	assert.ErrorIs(t, err, boom)
	agent.AssertExpectations(t)
}

func TestInvokeStopsAtFirstErroringMethodUnlessTolerant(t *testing.T) {
	agent := &askAndRun{askErr: errors.New("ask failed")}

	_, err := Invoke(t.Context(), agent, "q")
	assert.EqualError(t, err, "ask failed")
	assert.False(t, agent.ran)

	out, err := Invoke(t.Context(), agent, "q", Tolerant())
	require.NoError(t, err)
	assert.Equal(t, "from run", out)
	assert.True(t, agent.ran)
}

func TestInvokeFailedPayloadMovesOn(t *testing.T) {
	agent := &askAndRun{askErr: ErrInputType}

	out, err := Invoke(t.Context(), agent, "q")
	require.NoError(t, err)
	assert.Equal(t, "from run", out)
}

func TestInvokeCallable(t *testing.T) {
	fn := AgentFunc(func(_ context.Context, input any) (any, error) {
		return "called with " + input.(string), nil
	})

	out, err := Invoke(t.Context(), fn, "q")
	require.NoError(t, err)
	assert.Equal(t, "called with q", out)
}

func TestInvokeIncompatible(t *testing.T) {
	_, err := Invoke(t.Context(), struct{}{}, "q")

	var incompatible *IncompatibleError
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, KindAgent, incompatible.Kind)
	assert.ErrorIs(t, err, ErrNoMethod)
	assert.Equal(t, "agent does not expose a known single-turn API", err.Error())

	failing := AgentFunc(func(context.Context, any) (any, error) { return nil, errors.New("nope") })
	_, err = Invoke(t.Context(), failing, "q")
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, []string{"func"}, incompatible.Tried)
}

func TestInvokeRecoversPanics(t *testing.T) {
	_, err := Invoke(t.Context(), panickyAgent{}, "q")
	assert.ErrorContains(t, err, "Chat panicked: kaboom")
}

// Retrieval fixtures.

type emptySearcher struct{}

func (emptySearcher) Search(context.Context, any, ...SearchOption) (any, error) {
	return []string{}, nil
}

type failingSearcherWithFind struct{}

func (failingSearcherWithFind) Search(context.Context, any, ...SearchOption) (any, error) {
	return nil, errors.New("connection refused")
}

func (failingSearcherWithFind) Find(_ context.Context, input any, _ ...SearchOption) (any, error) {
	return []string{"found " + input.(string)}, nil
}

type topKOnly struct {
	seen []SearchOptions
}

func (s *topKOnly) Retrieve(_ context.Context, input any, opts ...SearchOption) (any, error) {
	o := ApplySearchOptions(SearchOptions{}, opts...)
	s.seen = append(s.seen, o)
	if o.TopK == 0 {
		return nil, ErrInputType
	}
	q, err := InputText(input, "query")
	if err != nil {
		return nil, err
	}
	docs := make([]string, o.TopK)
	for i := range docs {
		docs[i] = q
	}
	return docs, nil
}

type payloadSearcher struct{}

func (payloadSearcher) QueryDocuments(_ context.Context, input any, _ ...SearchOption) (any, error) {
	p, ok := input.(Payload)
	if !ok {
		return nil, ErrInputType
	}
	return []map[string]any{{"content": p["query"]}}, nil
}

func TestRetrieveFirstNonEmptyWins(t *testing.T) {
	store := struct {
		emptySearcher
		payloadSearcher
	}{}

	out, err := Retrieve(t.Context(), store, "curry")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"content": "curry"}}, out)
}

func TestRetrieveSkipsFailingMethod(t *testing.T) {
	out, err := Retrieve(t.Context(), failingSearcherWithFind{}, "noodles")
	require.NoError(t, err)
	assert.Equal(t, []string{"found noodles"}, out)
}

func TestRetrieveFallsBackToTopK(t *testing.T) {
	store := &topKOnly{}

	out, err := Retrieve(t.Context(), store, "soup")
	require.NoError(t, err)
	assert.Len(t, out, FallbackTopK)
	// raw, payload, then raw with a count hint
	require.Len(t, store.seen, 3)
	assert.Equal(t, FallbackTopK, store.seen[2].TopK)
}

func TestRetrieveEmptyAndIncompatible(t *testing.T) {
	out, err := Retrieve(t.Context(), emptySearcher{}, "x")
	assert.NoError(t, err)
	assert.Nil(t, out)

	_, err = Retrieve(t.Context(), 42, "x")
	var incompatible *IncompatibleError
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, KindStore, incompatible.Kind)

	_, err = Retrieve(t.Context(), nil, "x")
	assert.ErrorIs(t, err, ErrNoMethod)
}

func TestInputText(t *testing.T) {
	s, err := InputText("plain", "text")
	require.NoError(t, err)
	assert.Equal(t, "plain", s)

	s, err = InputText(map[string]any{"query": "q"}, "query")
	require.NoError(t, err)
	assert.Equal(t, "q", s)

	_, err = InputText(Payload{"text": 1}, "text")
	assert.ErrorIs(t, err, ErrInputType)

	_, err = InputText(3, "text")
	assert.ErrorIs(t, err, ErrInputType)
}
