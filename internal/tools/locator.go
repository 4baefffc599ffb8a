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

// Package tools finds the programmer and debug-probe executables used by the
// flash and debug orchestrators.
package tools

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tombee/embctl/internal/family"
)

// Kind identifies an external programming tool.
type Kind int

const (
	// STLink is the dedicated ST-LINK command line programmer.
	STLink Kind = iota + 1
	// OpenOCD is the generic debug-probe bridge.
	OpenOCD
	// UniFlash is the TI vendor flashing utility (DSLite).
	UniFlash
)

func (k Kind) String() string {
	switch k {
	case STLink:
		return "ST-Link"
	case OpenOCD:
		return "OpenOCD"
	case UniFlash:
		return "UniFlash"
	default:
		return "unknown"
	}
}

// Overrides are explicit tool paths. A set path that exists wins over discovery.
type Overrides struct {
	STLink   string `yaml:"stlink"`
	OpenOCD  string `yaml:"openocd"`
	UniFlash string `yaml:"uniflash"`
}

func (o Overrides) get(k Kind) string {
	switch k {
	case STLink:
		return o.STLink
	case OpenOCD:
		return o.OpenOCD
	case UniFlash:
		return o.UniFlash
	default:
		return ""
	}
}

// Locator resolves tool executables from overrides, well-known install
// locations, OPENOCD_PATH and the process search path.
type Locator struct {
	Overrides Overrides
	// WellKnown enables the standard install locations of the host OS.
	WellKnown bool
	// OpenOCDHome is the OPENOCD_PATH install root.
	OpenOCDHome string
	// PathEnv is the search path consulted last.
	PathEnv string
	goos    string
	home    string
}

// NewLocator creates a locator reading OPENOCD_PATH and PATH from the environment.
func NewLocator(overrides Overrides) *Locator {
	home, _ := os.UserHomeDir()
	return &Locator{
		Overrides:   overrides,
		WellKnown:   true,
		OpenOCDHome: os.Getenv("OPENOCD_PATH"),
		PathEnv:     os.Getenv("PATH"),
		goos:        runtime.GOOS,
		home:        home,
	}
}

// Find returns the path of the tool, or false when it is not installed.
func (l *Locator) Find(k Kind) (string, bool) {
	for _, p := range l.candidates(k) {
		if isFile(p) {
			return p, true
		}
	}
	return "", false
}

func (l *Locator) candidates(k Kind) []string {
	var out []string
	if p := l.Overrides.get(k); p != "" {
		out = append(out, p)
	}
	goos := l.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	if l.WellKnown {
		out = append(out, wellKnown(k, goos, l.home)...)
	}
	if k == OpenOCD && l.OpenOCDHome != "" {
		out = append(out, filepath.Join(l.OpenOCDHome, "bin", family.Exe("openocd")))
	}
	for _, dir := range filepath.SplitList(l.PathEnv) {
		if dir == "" {
			continue
		}
		for _, name := range pathNames(k, goos) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

func wellKnown(k Kind, goos, home string) []string {
	switch k {
	case STLink:
		if goos == "windows" {
			return []string{
				`C:\Program Files (x86)\STMicroelectronics\STM32 ST-LINK Utility\ST-LINK Utility\ST-LINK_CLI.exe`,
				`C:\Program Files\STMicroelectronics\STM32 ST-LINK Utility\ST-LINK Utility\ST-LINK_CLI.exe`,
			}
		}
		return nil
	case OpenOCD:
		if goos == "windows" {
			return []string{
				`C:\OpenOCD\bin\openocd.exe`,
				`C:\Program Files\OpenOCD\bin\openocd.exe`,
				`C:\Program Files (x86)\OpenOCD\bin\openocd.exe`,
			}
		}
		return []string{"/usr/local/bin/openocd", "/usr/bin/openocd", "/opt/openocd/bin/openocd"}
	case UniFlash:
		if goos == "windows" {
			return []string{
				`C:\ti\uniflash\dslite.bat`,
				`C:\ti\ccs\ccs_base\DebugServer\bin\DSLite.bat`,
			}
		}
		out := []string{"/opt/ti/uniflash/dslite.sh", "/opt/ti/ccs/ccs_base/DebugServer/bin/DSLite"}
		if home != "" {
			out = append(out, filepath.Join(home, "ti", "uniflash", "dslite.sh"))
		}
		return out
	default:
		return nil
	}
}

func pathNames(k Kind, goos string) []string {
	switch k {
	case STLink:
		if goos == "windows" {
			return []string{"ST-LINK_CLI.exe"}
		}
		return []string{"ST-LINK_CLI", "st-link_cli"}
	case OpenOCD:
		if goos == "windows" {
			return []string{"openocd.exe"}
		}
		return []string{"openocd"}
	case UniFlash:
		if goos == "windows" {
			return []string{"dslite.bat", "DSLite.bat"}
		}
		return []string{"dslite.sh", "DSLite", "dslite"}
	default:
		return nil
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
