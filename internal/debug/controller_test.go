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
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/portwait"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/testing/fakebin"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/tools"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

type finder map[tools.Kind]string

func (f finder) Find(k tools.Kind) (string, bool) {
	p, ok := f[k]
	return p, ok
}

type rig struct {
	project  project.Descriptor
	tc       toolchain.Descriptor
	artifact string
	openocd  string
	port     int
	out      *procrun.Buffer
}

// listen opens the port the fake server is expected to serve.
func listen(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newRig(t *testing.T, server, gdb string, port int) *rig {
	t.Helper()
	fakebin.SkipUnlessPOSIX(t)
	dir := t.TempDir()

	root := filepath.Join(dir, "gcc-arm")
	fakebin.Write(t, filepath.Join(root, "bin"), "arm-none-eabi-gcc", fakebin.Version)
	if gdb != "" {
		fakebin.Write(t, filepath.Join(root, "bin"), "arm-none-eabi-gdb", gdb)
	}

	p := project.Descriptor{Name: "blinky", Root: filepath.Join(dir, "blinky"), Processor: family.STM32}
	r := &rig{
		project:  p,
		tc:       toolchain.NewDescriptor(family.ArmGCC, root, "bin", "10.3.1"),
		artifact: fakebin.WriteFile(t, p.Artifact(".elf"), "ELF"),
		port:     port,
		out:      &procrun.Buffer{},
	}
	if server != "" {
		r.openocd = fakebin.Write(t, filepath.Join(dir, "openocd", "bin"), "openocd", server)
	}
	return r
}

func (r *rig) controller(readyTimeout time.Duration) *Controller {
	f := finder{}
	if r.openocd != "" {
		f[tools.OpenOCD] = r.openocd
	}
	runner := procrun.NewRunner(nil).WithKillGrace(200 * time.Millisecond)
	waiter := portwait.New(nil).WithInterval(50 * time.Millisecond)
	return New(runner, f, waiter, Options{
		Host:         "127.0.0.1",
		Port:         r.port,
		ReadyTimeout: readyTimeout,
		AttachGrace:  100 * time.Millisecond,
	}, nil)
}

func (r *rig) start(c *Controller) (*Session, error) {
	return c.Start(context.Background(), r.project, r.tc, r.artifact, r.out)
}

func TestStopWithoutSession(t *testing.T) {
	c := New(procrun.NewRunner(nil), finder{}, nil, Options{}, nil)
	assert.False(t, c.Stop())
	assert.False(t, c.Stop())
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Session())
}

func TestStart_AttachSendStop(t *testing.T) {
	r := newRig(t, fakebin.Sleeper, fakebin.Echoer, listen(t))
	c := r.controller(2 * time.Second)

	sess, err := r.start(c)
	require.NoError(t, err)
	t.Cleanup(func() { c.Stop() })

	assert.Equal(t, ClientAttached, c.State())
	assert.Same(t, sess, c.Session())
	assert.False(t, sess.Advisory)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "blinky", sess.Project)
	assert.True(t, sess.Alive())
	assert.NotZero(t, sess.ServerPID())
	assert.NotZero(t, sess.ClientPID())

	gdbLog, err := os.ReadFile(r.tc.DebuggerPath() + ".log")
	require.NoError(t, err)
	assert.Equal(t, r.artifact+" -ex target remote "+sess.Address()+" -ex load -ex monitor reset halt",
		strings.TrimSpace(string(gdbLog)))
	assert.Contains(t, r.out.String(), "[server] listening")

	require.NoError(t, c.SendCommand("info registers"))
	require.Eventually(t, func() bool {
		return strings.Contains(r.out.String(), "[client] got:info registers")
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, c.Stop())
	assert.Equal(t, Terminated, c.State())
	assert.Nil(t, c.Session())
	assert.False(t, sess.Alive())
	assert.False(t, c.Stop())

	err = c.SendCommand("continue")
	pe, ok := embctlerrors.Precondition(err)
	require.True(t, ok)
	assert.Equal(t, embctlerrors.KindNoSession, pe.Kind)
}

func TestStart_Busy(t *testing.T) {
	r := newRig(t, fakebin.Sleeper, fakebin.Echoer, listen(t))
	c := r.controller(2 * time.Second)

	_, err := r.start(c)
	require.NoError(t, err)
	t.Cleanup(func() { c.Stop() })

	_, err = r.start(c)
	require.Error(t, err)
	assert.True(t, embctlerrors.IsBusy(err))
	assert.Equal(t, ClientAttached, c.State())
}

func TestStart_ServerExitsEarly(t *testing.T) {
	r := newRig(t, fakebin.Failing, fakebin.Echoer, closedPort(t))
	c := r.controller(5 * time.Second)

	start := time.Now()
	_, err := r.start(c)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Contains(t, err.Error(), "exited before port")
	assert.Equal(t, 3, embctlerrors.ExitCode(err))
	assert.Equal(t, Idle, c.State())
	assert.Contains(t, r.out.String(), "[server] target not connected")

	// The slot was released.
	_, err = r.start(c)
	assert.False(t, embctlerrors.IsBusy(err))
}

func TestStart_PortTimeout(t *testing.T) {
	r := newRig(t, fakebin.Sleeper, fakebin.Echoer, closedPort(t))
	c := r.controller(300 * time.Millisecond)

	_, err := r.start(c)
	require.Error(t, err)
	var te *embctlerrors.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 300*time.Millisecond, te.Duration)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Session())
	assert.NoFileExists(t, r.tc.DebuggerPath()+".log")
}

func TestStart_ClientExitsDuringAttach(t *testing.T) {
	r := newRig(t, fakebin.Sleeper, fakebin.Failing, listen(t))
	c := r.controller(2 * time.Second)

	_, err := r.start(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client exited while attaching")
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.Stop())
}

func TestSession_EndsWhenClientQuits(t *testing.T) {
	r := newRig(t, fakebin.Sleeper, `read line; echo "bye"`, listen(t))
	c := r.controller(2 * time.Second)

	sess, err := r.start(c)
	require.NoError(t, err)
	t.Cleanup(func() { c.Stop() })

	require.NoError(t, c.SendCommand("quit"))
	require.Eventually(t, func() bool { return c.State() == Terminated }, 5*time.Second, 10*time.Millisecond)
	assert.Nil(t, c.Session())
	require.Eventually(t, func() bool { return !c.slot.Busy() }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, sess.Alive())

	_, err = r.start(c)
	require.NoError(t, err)
}

func TestStart_Preconditions(t *testing.T) {
	t.Run("missing artifact", func(t *testing.T) {
		r := newRig(t, fakebin.Sleeper, fakebin.Echoer, closedPort(t))
		r.artifact = filepath.Join(t.TempDir(), "nope.elf")
		_, err := r.start(r.controller(time.Second))
		pe, ok := embctlerrors.Precondition(err)
		require.True(t, ok)
		assert.Equal(t, embctlerrors.KindMissingFile, pe.Kind)
	})

	t.Run("missing gdb", func(t *testing.T) {
		r := newRig(t, fakebin.Sleeper, "", closedPort(t))
		_, err := r.start(r.controller(time.Second))
		pe, ok := embctlerrors.Precondition(err)
		require.True(t, ok)
		assert.Equal(t, embctlerrors.KindMissingTool, pe.Kind)
		assert.Equal(t, r.tc.DebuggerPath(), pe.Subject)
	})

	t.Run("missing openocd", func(t *testing.T) {
		r := newRig(t, "", fakebin.Echoer, closedPort(t))
		c := r.controller(time.Second)
		_, err := r.start(c)
		pe, ok := embctlerrors.Precondition(err)
		require.True(t, ok)
		assert.Equal(t, "OpenOCD", pe.Subject)
		assert.Equal(t, Idle, c.State())
	})
}

func TestStart_DSPAdvisory(t *testing.T) {
	dir := t.TempDir()
	p := project.Descriptor{Name: "fft", Root: dir, Processor: family.C67xx}
	artifact := fakebin.WriteFile(t, p.Artifact(".out"), "COFF")
	c := New(procrun.NewRunner(nil), finder{}, nil, Options{}, nil)
	var out procrun.Buffer

	sess, err := c.Start(context.Background(), p, toolchain.Descriptor{Family: family.TICGT}, artifact, &out)
	require.NoError(t, err)
	assert.True(t, sess.Advisory)
	assert.Contains(t, sess.Note, "Code Composer Studio")
	assert.Empty(t, sess.Address())
	assert.Equal(t, Advisory, c.State())
	assert.Contains(t, out.String(), "Code Composer Studio")

	_, err = c.Start(context.Background(), p, toolchain.Descriptor{Family: family.TICGT}, artifact, nil)
	assert.True(t, embctlerrors.IsBusy(err))

	err = c.SendCommand("run")
	_, ok := embctlerrors.Precondition(err)
	assert.True(t, ok)

	assert.True(t, c.Stop())
	assert.Equal(t, Terminated, c.State())
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []string{"-f", "interface/stlink.cfg", "-f", "target/stm32f4x.cfg"}, OpenOCDServerArgs(DefaultPort))
	assert.Equal(t, []string{"-f", "interface/stlink.cfg", "-f", "target/stm32f4x.cfg", "-c", "gdb_port 4444"}, OpenOCDServerArgs(4444))
	assert.Equal(t, []string{"a.elf", "-ex", "target remote localhost:3333", "-ex", "load", "-ex", "monitor reset halt"},
		GDBArgs("a.elf", "localhost", 3333))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "client-attached", ClientAttached.String())
	assert.Equal(t, "unknown", State(42).String())
}
