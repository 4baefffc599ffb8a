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

// Package project describes an embedded firmware project as the orchestrators
// see it. Descriptors are read-only inputs.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/embctl/internal/family"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// FileName is the project file looked up in a project root.
const FileName = "project.yaml"

// Default directories relative to the project root.
const (
	DefaultSourceDir = "src"
	DefaultBuildDir  = "build"
)

// Descriptor is a firmware project.
type Descriptor struct {
	Name      string
	Root      string
	Processor family.Processor
	// SourceDir is relative to Root.
	SourceDir string
	// BuildDir is relative to Root.
	BuildDir string
	// TargetConfig is the target connection file handed to the vendor flasher
	// (a .ccxml for the DSP family), relative to Root.
	TargetConfig string
}

// SourcePath is the absolute source directory.
func (d Descriptor) SourcePath() string {
	return d.join(d.SourceDir, DefaultSourceDir)
}

// BuildPath is the absolute build directory.
func (d Descriptor) BuildPath() string {
	return d.join(d.BuildDir, DefaultBuildDir)
}

// TargetConfigPath is the absolute target configuration path, or "".
func (d Descriptor) TargetConfigPath() string {
	if d.TargetConfig == "" {
		return ""
	}
	return d.join(d.TargetConfig, "")
}

func (d Descriptor) join(rel, def string) string {
	if rel == "" {
		rel = def
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(d.Root, rel)
}

// Artifact returns the path of an output file in the build directory named
// after the project.
func (d Descriptor) Artifact(ext string) string {
	return filepath.Join(d.BuildPath(), d.Name+ext)
}

// Validate checks the fields every orchestrator needs.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &embctlerrors.ValidationError{Field: "name", Message: "project name is required"}
	}
	if d.Root == "" {
		return &embctlerrors.ValidationError{Field: "root", Message: "project root is required"}
	}
	if !d.Processor.Valid() {
		return &embctlerrors.ValidationError{
			Field:      "processor",
			Message:    "unknown processor family",
			Suggestion: "use stm32 or c67xx",
		}
	}
	return nil
}

// file is the project.yaml layout.
type file struct {
	Name         string `yaml:"name"`
	Processor    string `yaml:"processor"`
	SourceDir    string `yaml:"source_dir,omitempty"`
	BuildDir     string `yaml:"build_dir,omitempty"`
	TargetConfig string `yaml:"target_config,omitempty"`
}

// Load reads <dir>/project.yaml. The name defaults to the directory name.
func Load(dir string) (Descriptor, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return Descriptor{}, err
	}
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Descriptor{}, &embctlerrors.PreconditionError{
			Kind:    embctlerrors.KindMissingFile,
			Subject: path,
			Message: "project file not found",
			Hint:    "create project.yaml with at least a processor field",
		}
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Descriptor{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	proc, err := family.ParseProcessor(f.Processor)
	if err != nil {
		return Descriptor{}, &embctlerrors.ValidationError{
			Field:      "processor",
			Message:    err.Error(),
			Suggestion: "use stm32 or c67xx",
		}
	}
	d := Descriptor{
		Name:         f.Name,
		Root:         root,
		Processor:    proc,
		SourceDir:    f.SourceDir,
		BuildDir:     f.BuildDir,
		TargetConfig: f.TargetConfig,
	}
	if d.Name == "" {
		d.Name = filepath.Base(root)
	}
	return d, d.Validate()
}

// Write stores d as <d.Root>/project.yaml.
func Write(d Descriptor) error {
	data, err := yaml.Marshal(file{
		Name:         d.Name,
		Processor:    d.Processor.String(),
		SourceDir:    d.SourceDir,
		BuildDir:     d.BuildDir,
		TargetConfig: d.TargetConfig,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.Root, FileName), data, 0o644)
}
