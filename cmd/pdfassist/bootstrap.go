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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/kadirpekel/pdfassist/pkg/agent"
	"github.com/kadirpekel/pdfassist/pkg/assistant"
	"github.com/kadirpekel/pdfassist/pkg/config"
	"github.com/kadirpekel/pdfassist/pkg/embedder"
	"github.com/kadirpekel/pdfassist/pkg/httpclient"
	"github.com/kadirpekel/pdfassist/pkg/knowledge"
	"github.com/kadirpekel/pdfassist/pkg/llm"
	"github.com/kadirpekel/pdfassist/pkg/observability"
	"github.com/kadirpekel/pdfassist/pkg/storage"
	"github.com/kadirpekel/pdfassist/pkg/vector"
)

// app holds every long-lived collaborator built from the config.
type app struct {
	cfg     *config.Config
	obs     *observability.Manager
	pool    *config.DBPool
	vectors vector.Provider
	emb     embedder.Embedder
	kb      *knowledge.Base
	store   storage.Storage
	model   llm.Model
	svc     *assistant.Service

	logCleanup func()
}

// loadConfig reads the config file, loading .env files next to it first.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnvForConfig(path); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
	return config.Load(path)
}

// bootstrap wires the assistant from the config at path.
func bootstrap(ctx context.Context, path string) (a *app, err error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, pool: config.NewDBPool(), logCleanup: func() {}}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	if a.logCleanup, err = applyLoggerConfig(cfg.Logger); err != nil {
		a.logCleanup = func() {}
		return a, err
	}

	a.obs = observability.NewManager(cfg.Observability)
	if err := a.obs.Initialize(ctx); err != nil {
		return a, fmt.Errorf("failed to initialize observability: %w", err)
	}

	var opts []vector.Option
	if cfg.VectorDB.Type == vector.ProviderPgVector || !cfg.Storage.IsDisabled() {
		db, err := a.pool.Get(ctx, &cfg.Database)
		if err != nil {
			return a, fmt.Errorf("failed to connect to database: %w", err)
		}
		opts = append(opts, vector.WithDB(db))

		if !cfg.Storage.IsDisabled() {
			a.store, err = storage.NewSQLStorage(ctx, db, cfg.Database.Dialect(), cfg.Storage.Schema, cfg.Storage.Table)
			if err != nil {
				return a, fmt.Errorf("failed to create session storage: %w", err)
			}
		}
	}
	if a.store == nil {
		a.store = storage.NewMemory()
	}

	if a.vectors, err = vector.NewProvider(cfg.VectorDB, opts...); err != nil {
		return a, fmt.Errorf("failed to create vector store: %w", err)
	}
	if a.emb, err = embedder.New(ctx, cfg.Embedder); err != nil {
		return a, fmt.Errorf("failed to create embedder: %w", err)
	}
	if a.kb, err = a.newKnowledge(cfg.Knowledge.URLs, a.vectors); err != nil {
		return a, fmt.Errorf("failed to create knowledge base: %w", err)
	}
	if a.model, err = llm.NewOpenAIProvider(cfg.LLM); err != nil {
		return a, fmt.Errorf("failed to create model: %w", err)
	}

	a.svc, err = assistant.New(assistant.Deps{
		Knowledge:             a.kb,
		NewAgent:              a.newAgent,
		NewStore:              a.newStore,
		UserID:                cfg.Agent.UserID,
		Model:                 cfg.LLM.Model,
		FallbackContextTokens: cfg.Agent.FallbackContextTokens,
	})
	if err != nil {
		return a, err
	}

	slog.Debug("Assistant ready",
		"model", cfg.LLM.Model,
		"embedder", a.emb.Model(),
		"vector_db", a.vectors.Name(),
		"urls", len(a.kb.URLs()))
	return a, nil
}

func (a *app) newKnowledge(urls []string, db vector.Provider) (*knowledge.Base, error) {
	kcfg := a.cfg.Knowledge
	kcfg.URLs = slices.Clone(urls)
	if kcfg.URLs == nil {
		kcfg.URLs = []string{}
	}
	client := httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: kcfg.FetchTimeout}))
	return knowledge.New(kcfg, a.emb, db,
		knowledge.WithReader(knowledge.NewReader(client, kcfg.MaxBytes)),
		knowledge.WithCollection(a.cfg.VectorDB.Collection),
	)
}

// newStore builds a knowledge base over urls, reusing the configured
// vector store when no other is given.
func (a *app) newStore(_ context.Context, urls []string, db vector.Provider) (assistant.KnowledgeStore, error) {
	if db == nil {
		db = a.vectors
	}
	return a.newKnowledge(urls, db)
}

// newAgent maps per-query options onto an agent bound to the configured
// model and session storage.
func (a *app) newAgent(_ context.Context, o assistant.AgentOptions) (any, error) {
	cfg := agent.Config{
		Model:           a.model,
		Storage:         a.store,
		SearchKnowledge: o.SearchKnowledge && config.BoolValue(a.cfg.Agent.SearchKnowledge, true),
		ReadChatHistory: o.ReadChatHistory,
		ShowToolCalls:   o.ShowToolCalls,
		UserID:          o.UserID,
		SessionID:       o.SessionID,
		Instructions:    a.cfg.Agent.Instructions,
		MaxToolRounds:   a.cfg.Agent.MaxToolRounds,
		HistoryMessages: a.cfg.Agent.HistoryMessages,
	}
	if kb, ok := o.Knowledge.(*knowledge.Base); ok && kb != nil {
		cfg.Knowledge = kb.SearchTool()
	}
	return agent.New(cfg)
}

// Close releases every collaborator that was created.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.vectors != nil {
		errs = append(errs, a.vectors.Close())
	}
	if a.emb != nil {
		errs = append(errs, a.emb.Close())
	}
	errs = append(errs, a.pool.Close())
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("Shutdown error", "error", err)
	}
	a.logCleanup()
}
