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

package watch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/embctl/internal/family"
)

// Matcher selects the source files of a family below a source root.
type Matcher struct {
	root    string
	include string
	exclude []string
}

// NewMatcher creates a matcher for proc's sources below root. Patterns in
// exclude are matched against the base name and the root-relative path.
func NewMatcher(root string, proc family.Processor, exclude []string) (*Matcher, error) {
	include := proc.SourcePattern()
	if include == "" {
		return nil, fmt.Errorf("no source pattern for processor family %s", proc)
	}
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return &Matcher{root: root, include: include, exclude: exclude}, nil
}

// Match reports whether path is a watched source file.
func (m *Matcher) Match(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range m.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
		if ok, _ := doublestar.Match(pattern, filepath.Base(path)); ok {
			return false
		}
	}
	ok, _ := doublestar.Match(m.include, strings.ToLower(rel))
	return ok
}

// DefaultExcludePatterns are editor backup and swap files.
func DefaultExcludePatterns() []string {
	return []string{
		"*.swp",
		"*.swo",
		".*.sw?",
		"*~",
		"#*#",
		".#*",
		"*.tmp",
		"**/.vscode/**",
		"**/.idea/**",
	}
}
