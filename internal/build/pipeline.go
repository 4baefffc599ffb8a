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

package build

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/toolchain"
)

// ARM Cortex-M4 flags for the STM32F429.
var (
	armCPUFlags = []string{
		"-mcpu=cortex-m4",
		"-mthumb",
		"-mfloat-abi=hard",
		"-mfpu=fpv4-sp-d16",
	}
	armCompileFlags = append(append([]string{}, armCPUFlags...),
		"-DSTM32F429xx",
		"-Wall",
		"-fdata-sections",
		"-ffunction-sections",
		"-O2",
		"-g",
	)
)

// C6700 floating-point DSP flags.
var (
	dspTargetFlags  = []string{"-mv6700", "--abi=eabi"}
	dspCompileFlags = append(append([]string{}, dspTargetFlags...),
		"-O2",
		"-g",
		"--diag_warning=225",
		"--display_error_number",
		"--verbose_diagnostics",
	)
)

// Stage names.
const (
	StageCompile = "compile"
	StageLink    = "link"
	StageHex     = "hex"
	StageBinary  = "binary"
	StageSize    = "size"
)

// step is one tool invocation of the pipeline.
type step struct {
	stage string
	// source is set for compile steps
	source string
	// banner is written to the sink before the step runs
	banner string
	cmd    procrun.Command
	output string
}

// plan is the complete invocation sequence for one build.
type plan struct {
	compiles []step
	link     step
	post     []step
	objects  []string
	image    string
	mapFile  string
	hex      string
	bin      string
}

func command(path string, args ...string) procrun.Command {
	return procrun.Command{Path: path, Args: args, Dir: filepath.Dir(path)}
}

// objectNames maps sources to object base names. A base name already used
// by an earlier source is prefixed with its directory path, then numbered
// until it is unique.
func objectNames(srcDir string, sources []string, ext string) []string {
	used := make(map[string]bool, len(sources))
	out := make([]string, len(sources))
	for i, src := range sources {
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		name := base + ext
		if used[strings.ToLower(name)] {
			rel, err := filepath.Rel(srcDir, src)
			if err != nil {
				rel = src
			}
			rel = strings.TrimSuffix(rel, filepath.Ext(rel))
			stem := strings.NewReplacer(string(filepath.Separator), "_", "/", "_").Replace(rel)
			name = stem + ext
			for n := 2; used[strings.ToLower(name)]; n++ {
				name = stem + "_" + strconv.Itoa(n) + ext
			}
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

// newPlan builds the family pipeline. The processor is known valid.
func newPlan(p project.Descriptor, tc toolchain.Descriptor, sources []string) (*plan, error) {
	buildDir := p.BuildPath()
	switch p.Processor {
	case family.STM32:
		return armPlan(p, tc, buildDir, sources), nil
	case family.C67xx:
		return dspPlan(p, tc, buildDir, sources), nil
	default:
		return nil, fmt.Errorf("no build pipeline for processor family %s", p.Processor)
	}
}

func armPlan(p project.Descriptor, tc toolchain.Descriptor, buildDir string, sources []string) *plan {
	cc := tc.CompilerPath()
	pl := &plan{
		image:   p.Artifact(".elf"),
		mapFile: p.Artifact(".map"),
		hex:     p.Artifact(".hex"),
		bin:     p.Artifact(".bin"),
	}

	for i, name := range objectNames(p.SourcePath(), sources, ".o") {
		obj := filepath.Join(buildDir, name)
		src := sources[i]
		args := append(append([]string{}, armCompileFlags...), "-c", src, "-o", obj)
		pl.objects = append(pl.objects, obj)
		pl.compiles = append(pl.compiles, step{
			stage:  StageCompile,
			source: src,
			banner: "Compiling: " + filepath.Base(src) + "\n",
			cmd:    command(cc, args...),
			output: obj,
		})
	}

	linkArgs := append(append([]string{}, armCPUFlags...),
		"-specs=nano.specs",
		"-Wl,--gc-sections",
		"-Wl,-Map="+pl.mapFile,
	)
	linkArgs = append(linkArgs, pl.objects...)
	linkArgs = append(linkArgs, "-o", pl.image)
	pl.link = step{
		stage:  StageLink,
		banner: "Linking: " + filepath.Base(pl.image) + "\n",
		cmd:    command(cc, linkArgs...),
		output: pl.image,
	}

	objcopy := tc.Tool("objcopy")
	pl.post = []step{
		{
			stage:  StageHex,
			banner: "Generating: " + filepath.Base(pl.hex) + "\n",
			cmd:    command(objcopy, "-O", "ihex", pl.image, pl.hex),
			output: pl.hex,
		},
		{
			stage:  StageBinary,
			banner: "Generating: " + filepath.Base(pl.bin) + "\n",
			cmd:    command(objcopy, "-O", "binary", pl.image, pl.bin),
			output: pl.bin,
		},
		{
			stage:  StageSize,
			banner: "\nProgram size:\n",
			cmd:    command(tc.Tool("size"), pl.image),
		},
	}
	return pl
}

// dspPlan links with the compiler driver in -z mode; the linked .out is the
// final artifact.
func dspPlan(p project.Descriptor, tc toolchain.Descriptor, buildDir string, sources []string) *plan {
	cc := tc.CompilerPath()
	pl := &plan{
		image:   p.Artifact(".out"),
		mapFile: p.Artifact(".map"),
	}

	for i, name := range objectNames(p.SourcePath(), sources, ".obj") {
		obj := filepath.Join(buildDir, name)
		src := sources[i]
		args := append(append([]string{}, dspCompileFlags...), "-c", src, "-fo="+obj)
		pl.objects = append(pl.objects, obj)
		pl.compiles = append(pl.compiles, step{
			stage:  StageCompile,
			source: src,
			banner: "Compiling: " + filepath.Base(src) + "\n",
			cmd:    command(cc, args...),
			output: obj,
		})
	}

	linkArgs := append(append([]string{}, dspTargetFlags...), "-z")
	linkArgs = append(linkArgs, pl.objects...)
	linkArgs = append(linkArgs, "-o", pl.image, "-m", pl.mapFile)
	pl.link = step{
		stage:  StageLink,
		banner: "Linking: " + filepath.Base(pl.image) + "\n",
		cmd:    command(cc, linkArgs...),
		output: pl.image,
	}
	return pl
}
