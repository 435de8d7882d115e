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

// Package mcpserver exposes the assistant as Model Context Protocol tools
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/pdfassist/pkg/assistant"
	"github.com/kadirpekel/pdfassist/pkg/knowledge"
)

const (
	ToolAsk    = "ask_pdf"
	ToolIndex  = "index_pdf"
	ToolSearch = "search_knowledge_base"
)

// Service is the assistant surface backing the tools.
type Service interface {
	Query(ctx context.Context, prompt string, opts ...assistant.QueryOption) assistant.QueryResult
	Index(ctx context.Context, url string) assistant.IndexResult
}

// Searcher runs a raw knowledge-base search. It matches knowledge.SearchTool.
type Searcher interface {
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Server wraps an MCP server bound to a Service.
type Server struct {
	svc      Service
	searcher Searcher
	mcp      *server.MCPServer
}

// New registers the tools. searcher may be nil, in which case
// search_knowledge_base is not offered.
func New(name, version string, svc Service, searcher Searcher) *Server {
	s := &Server{
		svc:      svc,
		searcher: searcher,
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question using the indexed PDF documents."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("session_id", mcp.Description("Continue an existing chat session")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool(ToolIndex,
		mcp.WithDescription("Add a PDF to the knowledge base. Indexing the same URL twice is harmless."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http or https URL of the PDF")),
	), s.handleIndex)

	if searcher != nil {
		s.mcp.AddTool(mcp.NewTool(ToolSearch,
			mcp.WithDescription("Search the knowledge base and return matching chunks as JSON."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of documents to return")),
		), s.handleSearch)
	}
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves on in/out until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	slog.Info("MCP server listening on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var opts []assistant.QueryOption
	if id := req.GetString("session_id", ""); id != "" {
		opts = append(opts, assistant.WithSession(id))
	}

	res := s.svc.Query(ctx, prompt, opts...)
	if !res.OK() {
		return jsonResult(res, true)
	}
	text := res.Result
	if res.Note != "" {
		text += "\n\n" + res.Note
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !knowledge.IsRemote(url) {
		return mcp.NewToolResultError("url must be an http or https URL"), nil
	}
	res := s.svc.Index(ctx, url)
	return jsonResult(res, !res.OK())
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := map[string]any{"query": query}
	if limit := req.GetInt("limit", 0); limit > 0 {
		args["limit"] = limit
	}

	out, err := s.searcher.Call(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	res := mcp.NewToolResultText(string(raw))
	res.IsError = isError
	return res, nil
}
