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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/embctl/internal/commands/shared"
	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/testing/fakebin"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/toolchain/store"
)

// workspace registers a fake ARM toolchain and creates an STM32 project
// holding sources.
func workspace(t *testing.T, sources ...string) string {
	t.Helper()
	fakebin.SkipUnlessPOSIX(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	registry := filepath.Join(dir, "toolchains.json")
	t.Setenv("EMBCTL_REGISTRY", registry)
	t.Setenv("EMBCTL_REGISTRY_BACKEND", "")

	root := filepath.Join(dir, "gcc-arm")
	bin := filepath.Join(root, "bin")
	fakebin.Write(t, bin, "arm-none-eabi-gcc", fakebin.Compiler)
	fakebin.Write(t, bin, "arm-none-eabi-objcopy", fakebin.Recorder)
	fakebin.Write(t, bin, "arm-none-eabi-size", fakebin.Recorder)

	st, err := store.Open(context.Background(), store.BackendJSON, registry)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), []toolchain.Descriptor{
		toolchain.NewDescriptor(family.ArmGCC, root, "bin", "10.3.1"),
	}))
	require.NoError(t, st.Close())

	proj := filepath.Join(dir, "blinky")
	fakebin.WriteFile(t, filepath.Join(proj, "project.yaml"), "name: blinky\nprocessor: stm32\n")
	for _, s := range sources {
		fakebin.WriteFile(t, filepath.Join(proj, "src", s), "int x;\n")
	}
	shared.SetProjectDirForTest(proj)
	t.Cleanup(func() { shared.SetProjectDirForTest("") })
	return proj
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "embctl", SilenceUsage: true, SilenceErrors: true}
	_, _, jsonPtr, _, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	t.Cleanup(func() { *jsonPtr = false })
	root.AddCommand(NewCommand(), NewCleanCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestBuildCommand_JSON(t *testing.T) {
	proj := workspace(t, "main.c", "drivers/led.c")

	out, err := execute(t, "build", "--json")
	require.NoError(t, err, out)

	var res resultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.True(t, res.Success)
	assert.Equal(t, "build", res.Command)
	assert.Equal(t, "blinky", res.Project)
	assert.Equal(t, filepath.Join(proj, "build", "blinky.elf"), res.Image)
	assert.Equal(t, filepath.Join(proj, "build", "blinky.bin"), res.Bin)
	assert.NotEmpty(t, res.ID)

	out, err = execute(t, "clean", "--json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"removed"`)
	_, statErr := os.Stat(filepath.Join(proj, "build", "main.o"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildCommand_CompileFailure(t *testing.T) {
	workspace(t, "main.c", "fail_compile.c")

	out, err := execute(t, "build", "--json")
	require.Error(t, err)
	assert.Equal(t, shared.ExitOperationFailed, shared.ExitCodeFor(err))

	var res resultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.False(t, res.Success)
	assert.Contains(t, res.FailedFile, "fail_compile.c")
}

func TestBuildCommand_NoSources(t *testing.T) {
	workspace(t)

	_, err := execute(t, "build", "--json")
	assert.Equal(t, shared.ExitPrecondition, shared.ExitCodeFor(err))
}

func TestBuildCommand_UnknownToolchain(t *testing.T) {
	workspace(t, "main.c")

	_, err := execute(t, "build", "--toolchain", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "toolchain not found: nope")
}
