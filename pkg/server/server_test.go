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

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kadirpekel/pdfassist/pkg/assistant"
	"github.com/kadirpekel/pdfassist/pkg/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type fakeService struct {
	mu       sync.Mutex
	prompts  []string
	urls     []string
	reloads  int
	sessions int
}

func (f *fakeService) Query(_ context.Context, prompt string, opts ...assistant.QueryOption) assistant.QueryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.sessions += len(opts)
	if prompt == "fail" {
		return assistant.QueryResult{Status: assistant.StatusError, Error: "boom", Hint: assistant.Hint}
	}
	return assistant.QueryResult{Status: assistant.StatusOK, Result: "answer to " + prompt}
}

func (f *fakeService) Index(_ context.Context, url string) assistant.IndexResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return assistant.IndexResult{Status: assistant.StatusOK, URL: url}
}

func (f *fakeService) Reload(context.Context) assistant.IndexResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return assistant.IndexResult{Status: assistant.StatusOK, URLCount: len(f.urls)}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestAPI(t *testing.T) {
	svc := &fakeService{}
	h := New(config.ServerConfig{}, svc).Handler()

	rec, out := do(t, h, http.MethodPost, "/api/index", `{"url":"https://example.com/a.pdf"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "https://example.com/a.pdf", out["url"])

	rec, out = do(t, h, http.MethodPost, "/api/query", `{"prompt":"pad thai","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "answer to pad thai", out["result"])

	_, out = do(t, h, http.MethodPost, "/api/query", `{"prompt":"fail"}`)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "boom", out["error"])
	assert.Equal(t, assistant.Hint, out["hint"])

	_, out = do(t, h, http.MethodPost, "/api/reload", "")
	assert.Equal(t, "ok", out["status"])
	assert.EqualValues(t, 1, out["urls"])

	assert.Equal(t, []string{"pad thai", "fail"}, svc.prompts)
	assert.Equal(t, 1, svc.sessions)
	assert.Equal(t, 1, svc.reloads)
}

func TestAPIRejectsBadRequests(t *testing.T) {
	svc := &fakeService{}
	h := New(config.ServerConfig{}, svc).Handler()

	tests := []struct {
		name, path, body, want string
	}{
		{"malformed", "/api/query", `{"prompt":`, "invalid request body"},
		{"unknown field", "/api/index", `{"link":"x"}`, "invalid request body"},
		{"missing url", "/api/index", `{}`, "url is required"},
		{"local path", "/api/index", `{"url":"/etc/passwd"}`, "http or https"},
		{"file url", "/api/index", `{"url":"file:///etc/passwd"}`, "http or https"},
		{"no host", "/api/index", `{"url":"https:///a.pdf"}`, "http or https"},
		{"missing prompt", "/api/query", `{"prompt":""}`, "prompt is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", out["status"])
			assert.Contains(t, out["error"], tt.want)
		})
	}
	assert.Empty(t, svc.prompts)
	assert.Empty(t, svc.urls)
}

func TestPagesAndProbes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pdfassist_queries_total 1\n")
	})
	h := New(config.ServerConfig{}, &fakeService{}, WithMetricsHandler(metrics)).Handler()

	rec, _ := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PDF Assistant")

	rec, out := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "pdfassist_queries_total")

	rec, _ = do(t, h, http.MethodGet, "/api/query", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsDisabledByDefault(t *testing.T) {
	rec, _ := do(t, New(config.ServerConfig{}, &fakeService{}).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(config.ServerConfig{ShutdownTimeout: time.Second}, &fakeService{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
