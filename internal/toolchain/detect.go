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
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/tombee/embctl/internal/family"
)

// Roots lists the directories scanned during detection.
type Roots struct {
	// Extra are configured search paths per family, scanned first.
	Extra map[family.Toolchain][]string
	// WellKnown adds the standard installation roots of the host OS.
	WellKnown bool
	// PathEnv is the process search path. Only ARM GCC consults it, and only
	// entries whose name mentions "arm" or "gcc".
	PathEnv string
}

// DefaultRoots scans well-known roots and the current PATH.
func DefaultRoots(extra map[family.Toolchain][]string) Roots {
	return Roots{Extra: extra, WellKnown: true, PathEnv: os.Getenv("PATH")}
}

// wellKnownRoots returns the standard installation roots for fam on goos.
func wellKnownRoots(fam family.Toolchain, goos, home string) []string {
	switch fam {
	case family.ArmGCC:
		if goos == "windows" {
			return []string{
				`C:\Program Files (x86)\GNU Arm Embedded Toolchain`,
				`C:\Program Files\GNU Arm Embedded Toolchain`,
				`C:\ARM`,
				`C:\Tools\ARM`,
			}
		}
		roots := []string{"/opt/gcc-arm-none-eabi", "/usr/local/gcc-arm-none-eabi", "/opt/arm", "/usr"}
		if goos == "darwin" {
			roots = append(roots, "/Applications/ARM")
		}
		return roots
	case family.TICGT:
		if goos == "windows" {
			return []string{
				`C:\ti\ccs\tools\compiler`,
				`C:\TI\ccs\tools\compiler`,
				`C:\Program Files\Texas Instruments`,
				`C:\Program Files (x86)\Texas Instruments`,
			}
		}
		roots := []string{"/opt/ti/ccs/tools/compiler", "/opt/ti"}
		if home != "" {
			roots = append(roots, filepath.Join(home, "ti", "ccs", "tools", "compiler"))
		}
		return roots
	default:
		return nil
	}
}

func (r Roots) forFamily(fam family.Toolchain) []string {
	var out []string
	out = append(out, r.Extra[fam]...)
	if r.WellKnown {
		home, _ := os.UserHomeDir()
		out = append(out, wellKnownRoots(fam, runtime.GOOS, home)...)
	}
	if fam == family.ArmGCC && r.PathEnv != "" {
		for _, dir := range filepath.SplitList(r.PathEnv) {
			lower := strings.ToLower(dir)
			if strings.Contains(lower, "arm") || strings.Contains(lower, "gcc") {
				out = append(out, dir)
			}
		}
	}
	return dedupe(out)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if p == "" {
			continue
		}
		c := filepath.Clean(p)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// candidate is a compiler found on disk before probing.
type candidate struct {
	family  family.Toolchain
	root    string
	binDir  string
	version string
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// findArmGCC looks for the compiler directly in base, in base/bin, and one
// directory level below base. The first match wins.
func findArmGCC(base string) (candidate, bool) {
	name := family.ArmGCC.CompilerName()
	try := func(root string) (candidate, bool) {
		for _, binDir := range []string{"", "bin"} {
			if isExecutableFile(filepath.Join(root, binDir, name)) {
				return candidate{family: family.ArmGCC, root: root, binDir: binDir}, true
			}
		}
		return candidate{}, false
	}

	if c, ok := try(base); ok {
		return c, true
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return candidate{}, false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if c, ok := try(filepath.Join(base, e.Name())); ok {
			return c, true
		}
	}
	return candidate{}, false
}

var tiDirVersion = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// findTICGT returns every ti-cgt-c6000* directory under base that holds
// bin/cl6x. The version comes from the directory name when present.
func findTICGT(base string) []candidate {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	var out []candidate
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(e.Name(), "ti-cgt-c6000") {
			continue
		}
		root := filepath.Join(base, e.Name())
		if !isExecutableFile(filepath.Join(root, "bin", family.TICGT.CompilerName())) {
			continue
		}
		c := candidate{family: family.TICGT, root: root, binDir: "bin"}
		if m := tiDirVersion.FindStringSubmatch(e.Name()); m != nil {
			c.version = m[1]
		}
		out = append(out, c)
	}
	return out
}

// scan returns every compiler candidate under the configured roots. A
// compiler directory reachable from several roots is reported once.
func (r Roots) scan() []candidate {
	var out []candidate
	seen := make(map[string]bool)
	add := func(c candidate) {
		dir := filepath.Join(c.root, c.binDir)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, c)
		}
	}
	for _, fam := range family.Toolchains() {
		for _, base := range r.forFamily(fam) {
			if _, err := os.Stat(base); err != nil {
				continue
			}
			switch fam {
			case family.ArmGCC:
				if c, ok := findArmGCC(base); ok {
					add(c)
				}
			case family.TICGT:
				for _, c := range findTICGT(base) {
					add(c)
				}
			}
		}
	}
	return out
}
