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

// Package storage persists agent sessions: the chat history of each
// session and the user it belongs to.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kadirpekel/pdfassist/pkg/llm"
)

// DefaultTable is the session table name.
const DefaultTable = "pdf_assistant"

// ErrNotFound is returned by Read when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Run records one completed agent turn.
type Run struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the persisted state of one conversation.
type Session struct {
	ID        string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	Messages  []llm.Message `json:"messages"`
	Runs      []Run         `json:"runs"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// memory is the JSON document stored per session.
type memory struct {
	Messages []llm.Message `json:"messages"`
	Runs     []Run         `json:"runs"`
}

// Storage reads and writes sessions.
type Storage interface {
	// Read returns the session or ErrNotFound.
	Read(ctx context.Context, sessionID string) (*Session, error)

	// Upsert creates or replaces the session.
	Upsert(ctx context.Context, s *Session) error

	// SessionIDs lists a user's sessions, most recently updated first.
	// An empty userID lists every session.
	SessionIDs(ctx context.Context, userID string) ([]string, error)

	Delete(ctx context.Context, sessionID string) error
}
