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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(slog.LevelInfo, &buf, FormatSimple)).With("component", "test")

	log.Info("indexed url", "url", "https://example.com/a.pdf")
	log.Debug("hidden")

	assert.Equal(t, "INFO indexed url component=test url=https://example.com/a.pdf\n", buf.String())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(slog.LevelWarn, &buf, FormatJSON))

	log.Info("dropped")
	log.Warn("kept", "n", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.EqualValues(t, 3, rec["n"])
}

func TestFilteringHandlerDropsForeignRecords(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(slog.LevelInfo, &buf, FormatSimple)

	// A zero PC cannot be attributed to this module.
	rec := slog.NewRecord(time.Time{}, slog.LevelInfo, "from elsewhere", 0)
	require.NoError(t, h.Handle(t.Context(), rec))
	assert.Empty(t, buf.String())

	debug := NewHandler(slog.LevelDebug, &buf, FormatSimple)
	require.NoError(t, debug.Handle(t.Context(), rec))
	assert.Contains(t, buf.String(), "from elsewhere")
}
