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

// Package family defines the closed sets of processor and toolchain families
// and the per-family constants that drive every pipeline.
package family

import (
	"fmt"
	"runtime"
	"strings"
)

// Processor identifies a target processor family.
type Processor int

const (
	// ProcessorUnknown is the zero value and never valid.
	ProcessorUnknown Processor = iota
	// STM32 is the ARM Cortex-M4 STM32F4 family.
	STM32
	// C67xx is the TI C67xx floating-point DSP family.
	C67xx
)

// Toolchain identifies a compiler toolchain family.
type Toolchain int

const (
	ToolchainUnknown Toolchain = iota
	// ArmGCC is the GNU Arm Embedded toolchain.
	ArmGCC
	// TICGT is the TI C6000 code generation tools.
	TICGT
)

// Processors lists every supported processor family.
func Processors() []Processor {
	return []Processor{STM32, C67xx}
}

// Toolchains lists every supported toolchain family.
func Toolchains() []Toolchain {
	return []Toolchain{ArmGCC, TICGT}
}

// ParseProcessor accepts the canonical names plus the aliases used by
// project files ("stm32f429", "stm32-family", "ti_c67xx", "dsp-c67xx-family").
func ParseProcessor(s string) (Processor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stm32", "stm32f429", "stm32-family":
		return STM32, nil
	case "c67xx", "ti_c67xx", "dsp-c67xx-family":
		return C67xx, nil
	default:
		return ProcessorUnknown, fmt.Errorf("unknown processor family %q", s)
	}
}

// ParseToolchain parses a toolchain family tag.
func ParseToolchain(s string) (Toolchain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arm-gcc":
		return ArmGCC, nil
	case "ti-cgt":
		return TICGT, nil
	default:
		return ToolchainUnknown, fmt.Errorf("unknown toolchain family %q", s)
	}
}

func (p Processor) String() string {
	switch p {
	case STM32:
		return "stm32"
	case C67xx:
		return "c67xx"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a member of the closed set.
func (p Processor) Valid() bool {
	return p == STM32 || p == C67xx
}

// Toolchain maps the processor to the toolchain family that builds it.
func (p Processor) Toolchain() Toolchain {
	switch p {
	case STM32:
		return ArmGCC
	case C67xx:
		return TICGT
	default:
		return ToolchainUnknown
	}
}

// SourceExtensions are the lower-case extensions compiled for the family.
func (p Processor) SourceExtensions() []string {
	switch p {
	case STM32:
		return []string{".c"}
	case C67xx:
		return []string{".c", ".cpp"}
	default:
		return nil
	}
}

// SourcePattern is the doublestar pattern matching the family's sources.
func (p Processor) SourcePattern() string {
	switch p {
	case STM32:
		return "**/*.c"
	case C67xx:
		return "**/*.{c,cpp}"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Processor) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid processor family %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Processor) UnmarshalText(b []byte) error {
	v, err := ParseProcessor(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (t Toolchain) String() string {
	switch t {
	case ArmGCC:
		return "arm-gcc"
	case TICGT:
		return "ti-cgt"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a member of the closed set.
func (t Toolchain) Valid() bool {
	return t == ArmGCC || t == TICGT
}

// CompilerName is the compiler driver executable name for the host OS.
func (t Toolchain) CompilerName() string {
	switch t {
	case ArmGCC:
		return Exe("arm-none-eabi-gcc")
	case TICGT:
		return Exe("cl6x")
	default:
		return ""
	}
}

// LinkerName is the standalone linker executable name for the host OS.
func (t Toolchain) LinkerName() string {
	switch t {
	case ArmGCC:
		return Exe("arm-none-eabi-ld")
	case TICGT:
		return Exe("lnk6x")
	default:
		return ""
	}
}

// DebuggerName is the debugger or debug utility executable name for the host OS.
func (t Toolchain) DebuggerName() string {
	switch t {
	case ArmGCC:
		return Exe("arm-none-eabi-gdb")
	case TICGT:
		return Exe("cg_xml")
	default:
		return ""
	}
}

// DisplayName is the human-readable toolchain family name.
func (t Toolchain) DisplayName() string {
	switch t {
	case ArmGCC:
		return "ARM GCC"
	case TICGT:
		return "TI CGT C6000"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Toolchain) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid toolchain family %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Toolchain) UnmarshalText(b []byte) error {
	v, err := ParseToolchain(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Exe appends the host executable suffix to name.
func Exe(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}
