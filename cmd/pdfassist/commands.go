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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/pdfassist"
	"github.com/kadirpekel/pdfassist/pkg/assistant"
	"github.com/kadirpekel/pdfassist/pkg/config"
	"github.com/kadirpekel/pdfassist/pkg/mcpserver"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/server"
	"github.com/kadirpekel/pdfassist/pkg/tui"
)

// IndexCmd adds a PDF to the knowledge base.
type IndexCmd struct {
	URL  string `arg:"" help:"URL or local path of the PDF."`
	JSON bool   `help:"Print the raw result as JSON."`
}

func (c *IndexCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := bootstrap(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res := a.svc.Index(ctx, c.URL)
	if c.JSON {
		return printJSON(res)
	}
	if !res.OK() {
		return errors.New(res.Error)
	}
	fmt.Printf("Indexed %s\n", res.URL)
	return nil
}

// AskCmd answers a single question.
type AskCmd struct {
	Prompt  string `arg:"" help:"The question to ask."`
	Session string `help:"Continue an existing chat session."`
	JSON    bool   `help:"Print the raw result as JSON."`
}

func (c *AskCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := bootstrap(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	var opts []assistant.QueryOption
	if c.Session != "" {
		opts = append(opts, assistant.WithSession(c.Session))
	}
	res := a.svc.Query(ctx, c.Prompt, opts...)
	if c.JSON {
		return printJSON(res)
	}
	return printQuery(res)
}

func printQuery(res assistant.QueryResult) error {
	if res.OK() {
		fmt.Println(res.Result)
		if res.Note != "" {
			fmt.Fprintln(os.Stderr, res.Note)
		}
		return nil
	}
	if res.FailedGeneration != "" {
		fmt.Fprintf(os.Stderr, "Failed generation: %s\n", res.FailedGeneration)
	}
	if res.Hint != "" {
		fmt.Fprintln(os.Stderr, res.Hint)
	}
	if res.Traceback != "" {
		slog.Debug("Query traceback", "traceback", res.Traceback)
	}
	return errors.New(res.Error)
}

// ChatCmd starts the interactive chat.
type ChatCmd struct {
	New   bool   `help:"Start a new session instead of resuming the last one."`
	User  string `help:"User that owns the session." default:"user"`
	Plain bool   `help:"Disable markdown rendering."`
}

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := bootstrap(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sessionID, err := c.session(ctx, a)
	if err != nil {
		return err
	}
	slog.Debug("Starting chat", "user", c.User, "session", sessionID)

	return tui.Run(ctx, a.svc, tui.Options{
		UserID:          c.User,
		SessionID:       sessionID,
		ReadChatHistory: config.BoolValue(a.cfg.Agent.ReadChatHistory, true),
		ShowToolCalls:   config.BoolValue(a.cfg.Agent.ShowToolCalls, true),
		Plain:           c.Plain,
	})
}

// session resumes the user's most recent session unless --new is set.
func (c *ChatCmd) session(ctx context.Context, a *app) (string, error) {
	if !c.New {
		ids, err := a.store.SessionIDs(ctx, c.User)
		if err != nil {
			return "", fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(ids) > 0 {
			return ids[0], nil
		}
	}
	return uuid.NewString(), nil
}

// ServeCmd starts the HTTP server. Clients may index any http or https URL
// through it, so keep it on a trusted network.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Watch bool `help:"Watch the config file and index newly added URLs."`
}

func (c *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := bootstrap(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if c.Port != 0 {
		a.cfg.Server.Port = c.Port
		if err := a.cfg.Server.Validate(); err != nil {
			return err
		}
	}

	if c.Watch {
		if err := c.watch(ctx, a, configPath(cli.Config)); err != nil {
			return err
		}
	}

	srv := server.New(a.cfg.Server, a.svc,
		server.WithMetricsHandler(observability.GetGlobalMetrics().Handler()))

	fmt.Printf("\nPDF assistant ready\n")
	fmt.Printf("   Web UI:  http://%s\n", a.cfg.Server.Address())
	fmt.Printf("   Health:  http://%s/health\n", a.cfg.Server.Address())
	if a.cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics: http://%s/metrics\n", a.cfg.Server.Address())
	}
	fmt.Println()

	return srv.ListenAndServe(ctx)
}

// watch indexes URLs added to the config file while the server runs.
func (c *ServeCmd) watch(ctx context.Context, a *app, path string) error {
	changes, err := config.Watch(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	slog.Info("Watching config for new URLs", "path", path)

	go func() {
		for range changes {
			cfg, err := config.Load(path)
			if err != nil {
				slog.Error("Ignoring invalid config change", "error", err)
				continue
			}
			known := a.kb.URLs()
			for _, u := range cfg.Knowledge.URLs {
				if slices.Contains(known, u) {
					continue
				}
				res := a.svc.Index(ctx, u)
				if res.OK() {
					slog.Info("Indexed new URL", "url", u)
				} else {
					slog.Error("Failed to index new URL", "url", u, "error", res.Error)
				}
			}
		}
	}()
	return nil
}

func configPath(path string) string {
	if path == "" {
		return config.DefaultConfigPath
	}
	return path
}

// ReloadCmd reloads every configured URL.
type ReloadCmd struct{}

func (c *ReloadCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := bootstrap(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res := a.svc.Reload(ctx)
	if !res.OK() {
		return errors.New(res.Error)
	}
	fmt.Printf("Reloaded %d document(s)\n", res.URLCount)
	return nil
}

// MCPCmd serves the assistant over MCP stdio.
type MCPCmd struct{}

func (c *MCPCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := bootstrap(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := mcpserver.New("pdfassist", pdfassist.GetVersion().Version, a.svc, a.kb.SearchTool())
	return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
}

// ValidateCmd checks the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration is valid (llm: %s/%s, embedder: %s, vector_db: %s, %d url(s))\n",
		cfg.LLM.Provider, cfg.LLM.Model, cfg.Embedder.Provider, cfg.VectorDB.Type, len(cfg.Knowledge.URLs))
	return nil
}

// SchemaCmd prints the configuration JSON Schema.
type SchemaCmd struct{}

func (c *SchemaCmd) Run() error {
	return printJSON(configSchema())
}

func configSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(&config.Config{})
	s.Title = "pdfassist configuration"
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
