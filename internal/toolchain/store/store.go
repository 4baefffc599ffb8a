// Copyright 2025 Tom Barlow
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

// Package store persists the toolchain registry as a JSON file or a SQLite
// database.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tombee/embctl/internal/toolchain"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Compile-time interface assertions.
var (
	_ toolchain.Store = (*JSON)(nil)
	_ toolchain.Store = (*SQLite)(nil)
)

// Open returns the store for backend at path. An empty backend is inferred
// from the file extension (.db and .sqlite select SQLite).
func Open(ctx context.Context, backend, path string) (toolchain.Store, error) {
	if backend == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".db", ".sqlite":
			backend = BackendSQLite
		default:
			backend = BackendJSON
		}
	}
	switch backend {
	case BackendJSON:
		return NewJSON(path), nil
	case BackendSQLite:
		return NewSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}
