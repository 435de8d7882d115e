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

package config

import (
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// agplSources derive from AGPL-licensed code and keep its header.
var agplSources = map[string]bool{
	"pkg/config/dbpool.go":     true,
	"pkg/config/database.go":   true,
	"pkg/embedder/embedder.go": true,
	"pkg/knowledge/reader.go":  true,
	"pkg/vector/chromem.go":    true,
}

func moduleSources(t *testing.T) map[string][]byte {
	t.Helper()
	root := filepath.Join("..", "..")
	files := map[string][]byte{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = src
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, files)
	return files
}

func TestSourcesAreFormatted(t *testing.T) {
	for name, src := range moduleSources(t) {
		formatted, err := format.Source(src)
		require.NoError(t, err, name)
		assert.Equal(t, string(formatted), string(src), "%s is not gofmt-clean", name)
	}
}

func TestSourceLicenseHeaders(t *testing.T) {
	for name, src := range moduleSources(t) {
		first, _, _ := strings.Cut(string(src), "\n")
		if agplSources[name] {
			assert.Equal(t, "// SPDX-License-Identifier: AGPL-3.0", first, name)
			continue
		}
		assert.NotContains(t, first, "AGPL", name)
	}
}
