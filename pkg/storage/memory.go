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

package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Storage.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]Session)}
}

func (m *Memory) Read(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Messages = slices.Clone(s.Messages)
	s.Runs = slices.Clone(s.Runs)
	return &s, nil
}

func (m *Memory) Upsert(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cp := *s
	cp.Messages = slices.Clone(s.Messages)
	cp.Runs = slices.Clone(s.Runs)
	if prev, ok := m.sessions[s.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.sessions[s.ID] = cp
	return nil
}

func (m *Memory) SessionIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []Session
	for _, s := range m.sessions {
		if userID == "" || s.UserID == userID {
			list = append(list, s)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })

	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

var _ Storage = (*Memory)(nil)
