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

package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/embctl/internal/commands/shared"
	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/testing/fakebin"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/toolchain/store"
)

// lockedBuffer is written by the shell and by tool output goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// workspace writes a config and a project for proc under a temp dir and
// returns the temp dir and project root.
func workspace(t *testing.T, proc, config string) (string, string) {
	t.Helper()
	fakebin.SkipUnlessPOSIX(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("EMBCTL_REGISTRY", "")
	t.Setenv("EMBCTL_REGISTRY_BACKEND", "")
	t.Setenv("EMBCTL_DEBUG_PORT", "")

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "registry:\n  path: " + filepath.Join(dir, "toolchains.json") + "\n" + config
	fakebin.WriteFile(t, cfgPath, cfg)
	shared.SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	proj := filepath.Join(dir, "blinky")
	fakebin.WriteFile(t, filepath.Join(proj, "project.yaml"), "name: blinky\nprocessor: "+proc+"\n")
	shared.SetProjectDirForTest(proj)
	t.Cleanup(func() { shared.SetProjectDirForTest("") })
	return dir, proj
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "embctl", SilenceUsage: true, SilenceErrors: true}
	_, _, jsonPtr, _, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	t.Cleanup(func() { *jsonPtr = false })
	root.AddCommand(NewDebugCommand())

	var out lockedBuffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDefaultArtifact(t *testing.T) {
	stm := project.Descriptor{Name: "blinky", Root: "/p", Processor: family.STM32}
	dsp := project.Descriptor{Name: "fir", Root: "/p", Processor: family.C67xx}
	assert.Equal(t, filepath.Join("/p", "build", "blinky.elf"), DefaultArtifact(stm))
	assert.Equal(t, filepath.Join("/p", "build", "fir.out"), DefaultArtifact(dsp))
}

func TestDebugCommand_DSPAdvisory(t *testing.T) {
	_, proj := workspace(t, "c67xx", "")
	artifact := fakebin.WriteFile(t, filepath.Join(proj, "build", "blinky.out"), "\x7fELF")

	out, err := execute(t, "", "debug", "--json")
	require.Error(t, err)
	assert.Equal(t, shared.ExitAdvisory, shared.ExitCodeFor(err))

	var sess sessionJSON
	require.NoError(t, json.Unmarshal([]byte(out), &sess), out)
	assert.False(t, sess.Success)
	assert.True(t, sess.Advisory)
	assert.NotEmpty(t, sess.Note)
	assert.Equal(t, "c67xx", sess.Processor)
	assert.Equal(t, artifact, sess.Artifact)

	out, err = execute(t, "", "debug")
	assert.Equal(t, shared.ExitAdvisory, shared.ExitCodeFor(err))
	assert.Contains(t, out, sess.Note)
}

func TestDebugCommand_MissingArtifact(t *testing.T) {
	workspace(t, "c67xx", "")

	_, err := execute(t, "", "debug")
	assert.Equal(t, shared.ExitPrecondition, shared.ExitCodeFor(err))
}

func TestDebugCommand_ARMSession(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	port := l.Addr().(*net.TCPAddr).Port

	base := t.TempDir()
	openocd := fakebin.Write(t, filepath.Join(base, "openocd", "bin"), "openocd", fakebin.Sleeper)
	dir, proj := workspace(t, "stm32", fmt.Sprintf(`debug:
  host: 127.0.0.1
  port: %d
  ready_timeout: 2s
  poll_interval: 50ms
  attach_grace: 100ms
tools:
  openocd: %s
`, port, openocd))

	root := filepath.Join(base, "gcc-arm")
	fakebin.Write(t, filepath.Join(root, "bin"), "arm-none-eabi-gcc", fakebin.Version)
	gdb := fakebin.Write(t, filepath.Join(root, "bin"), "arm-none-eabi-gdb", fakebin.Echoer)
	st, err := store.Open(context.Background(), store.BackendJSON, filepath.Join(dir, "toolchains.json"))
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), []toolchain.Descriptor{
		toolchain.NewDescriptor(family.ArmGCC, root, "bin", "10.3.1"),
	}))
	require.NoError(t, st.Close())
	elf := fakebin.WriteFile(t, filepath.Join(proj, "build", "blinky.elf"), "\x7fELF")

	out, err := execute(t, "info registers\nquit\n", "debug")
	require.NoError(t, err, out)
	assert.Contains(t, out, fmt.Sprintf("Attached to 127.0.0.1:%d", port))

	log, err := os.ReadFile(gdb + ".log")
	require.NoError(t, err)
	assert.Contains(t, string(log), elf)
	assert.Contains(t, string(log), fmt.Sprintf("target remote 127.0.0.1:%d", port))
}
