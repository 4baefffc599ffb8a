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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tombee/embctl/internal/toolchain"
)

// registryFile is the on-disk JSON layout.
type registryFile struct {
	Toolchains []toolchain.Descriptor `json:"toolchains"`
}

// JSON keeps the registry in a single JSON document.
type JSON struct {
	path string
	mu   sync.Mutex
}

// NewJSON creates a JSON store. The file is created on first Save.
func NewJSON(path string) *JSON {
	return &JSON{path: path}
}

// Path returns the registry file path.
func (s *JSON) Path() string {
	return s.path
}

// Load implements toolchain.Store.
func (s *JSON) Load(_ context.Context) ([]toolchain.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	var f registryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return f.Toolchains, nil
}

// Save implements toolchain.Store. The file is replaced atomically.
func (s *JSON) Save(_ context.Context, items []toolchain.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items == nil {
		items = []toolchain.Descriptor{}
	}
	data, err := json.MarshalIndent(registryFile{Toolchains: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".toolchains-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Close implements toolchain.Store.
func (s *JSON) Close() error {
	return nil
}
