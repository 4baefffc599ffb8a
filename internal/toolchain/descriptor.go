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

package toolchain

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/tombee/embctl/internal/family"
)

// Descriptor identifies one installed toolchain. Executable paths are
// relative to Root.
type Descriptor struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name" yaml:"name"`
	Family   family.Toolchain `json:"family" yaml:"family"`
	Root     string           `json:"root" yaml:"root"`
	Version  string           `json:"version" yaml:"version"`
	Compiler string           `json:"compiler" yaml:"compiler"`
	Linker   string           `json:"linker" yaml:"linker"`
	Debugger string           `json:"debugger" yaml:"debugger"`
	Detected bool             `json:"detected,omitempty" yaml:"detected,omitempty"`
	AddedAt  time.Time        `json:"added_at,omitzero" yaml:"added_at,omitempty"`
}

// Key is the registry dedup key: family plus cleaned root path.
type Key struct {
	Family family.Toolchain
	Root   string
}

// Key returns the dedup key of d.
func (d Descriptor) Key() Key {
	return Key{Family: d.Family, Root: filepath.Clean(d.Root)}
}

// CompilerPath is the absolute compiler executable path.
func (d Descriptor) CompilerPath() string {
	return filepath.Join(d.Root, d.Compiler)
}

// LinkerPath is the absolute linker executable path.
func (d Descriptor) LinkerPath() string {
	return filepath.Join(d.Root, d.Linker)
}

// DebuggerPath is the absolute debugger executable path.
func (d Descriptor) DebuggerPath() string {
	return filepath.Join(d.Root, d.Debugger)
}

// Tool resolves a sibling of the compiler, e.g. Tool("objcopy") for
// arm-none-eabi-objcopy next to arm-none-eabi-gcc.
func (d Descriptor) Tool(suffix string) string {
	dir := filepath.Dir(d.CompilerPath())
	switch d.Family {
	case family.ArmGCC:
		return filepath.Join(dir, family.Exe("arm-none-eabi-"+suffix))
	case family.TICGT:
		return filepath.Join(dir, family.Exe(suffix))
	default:
		return ""
	}
}

// NewDescriptor fills executable paths and a display name for a toolchain
// installed under root. binDir is the compiler directory relative to root
// ("" or "bin").
func NewDescriptor(fam family.Toolchain, root, binDir, version string) Descriptor {
	rel := func(name string) string {
		if binDir == "" {
			return name
		}
		return filepath.Join(binDir, name)
	}
	return Descriptor{
		ID:       makeID(fam, version),
		Name:     strings.TrimSpace(fam.DisplayName() + " " + version),
		Family:   fam,
		Root:     root,
		Version:  version,
		Compiler: rel(fam.CompilerName()),
		Linker:   rel(fam.LinkerName()),
		Debugger: rel(fam.DebuggerName()),
	}
}

func makeID(fam family.Toolchain, version string) string {
	if version == "" {
		version = UnknownVersion
	}
	return fam.String() + "-" + strings.ReplaceAll(version, ".", "-")
}
