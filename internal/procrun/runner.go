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

// Package procrun spawns external executables, streams their output to a Sink
// and tracks the resulting handles so they can be terminated as a group.
package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// DefaultKillGrace is how long a terminated process gets to exit before SIGKILL.
const DefaultKillGrace = 3 * time.Second

// ErrNoStdin is returned by WriteLine when the process was started without WithStdin.
var ErrNoStdin = errors.New("process has no command input")

// ErrNotRunning is returned by WriteLine after the process exited.
var ErrNotRunning = errors.New("process not running")

// Command describes one invocation. The caller builds every path and argument;
// the runner performs no resolution of its own.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// String renders the command line for logs and banners.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Outcome describes a process that exited with code 0.
type Outcome struct {
	PID      int
	ExitCode int
	Duration time.Duration
}

type startOptions struct {
	stdin bool
	group *Group
}

// Option configures Start and Run.
type Option func(*startOptions)

// WithStdin keeps a pipe to the process input open for WriteLine.
func WithStdin() Option {
	return func(o *startOptions) { o.stdin = true }
}

// WithGroup registers the handle in g until it exits.
func WithGroup(g *Group) Option {
	return func(o *startOptions) { o.group = g }
}

// Runner launches external processes.
type Runner struct {
	logger    *slog.Logger
	killGrace time.Duration
}

// NewRunner creates a runner. A nil logger uses slog.Default().
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:    logger.With(slog.String("component", "procrun")),
		killGrace: DefaultKillGrace,
	}
}

// WithKillGrace sets the SIGTERM to SIGKILL delay.
func (r *Runner) WithKillGrace(d time.Duration) *Runner {
	r.killGrace = d
	return r
}

// KillGrace returns the configured SIGTERM to SIGKILL delay.
func (r *Runner) KillGrace() time.Duration {
	return r.killGrace
}

// Run starts cmd and waits for it. Stdout and stderr chunks are forwarded to
// sink as they arrive. A nonzero exit or spawn failure is a *errors.ProcessError.
func (r *Runner) Run(ctx context.Context, cmd Command, sink Sink, opts ...Option) (*Outcome, error) {
	h, err := r.Start(ctx, cmd, sink, opts...)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start launches cmd without waiting for it to exit.
func (r *Runner) Start(ctx context.Context, cmd Command, sink Sink, opts ...Option) (*Handle, error) {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	if sink == nil {
		sink = Discard
	}
	out := Writer(Synchronized(sink))

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdout = out
	c.Stderr = out
	c.SysProcAttr = sysProcAttr()
	c.Cancel = func() error { return signalTerminate(c.Process) }
	c.WaitDelay = r.killGrace

	h := &Handle{
		path:   cmd.Path,
		cmd:    c,
		done:   make(chan struct{}),
		group:  o.group,
		logger: r.logger,
	}

	if o.stdin {
		stdin, err := c.StdinPipe()
		if err != nil {
			return nil, &embctlerrors.ProcessError{Path: cmd.Path, ExitCode: -1, Cause: err}
		}
		h.stdin = stdin
	}

	h.started = time.Now()
	if err := c.Start(); err != nil {
		if h.stdin != nil {
			_ = h.stdin.Close()
		}
		r.logger.Debug("spawn failed", slog.String("path", cmd.Path), slog.Any("error", err))
		return nil, &embctlerrors.ProcessError{Path: cmd.Path, ExitCode: -1, Cause: err}
	}

	r.logger.Debug("process started",
		slog.String("path", cmd.Path),
		slog.Int("pid", c.Process.Pid),
		slog.Int("args", len(cmd.Args)))

	if h.group != nil {
		h.group.add(h)
	}
	go h.wait()

	return h, nil
}

// Handle is a reference to a started process.
type Handle struct {
	path    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	group   *Group
	logger  *slog.Logger
	started time.Time

	stdinMu    sync.Mutex
	terminated atomic.Bool

	done     chan struct{}
	err      error
	duration time.Duration
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.duration = time.Since(h.started)
	if err != nil {
		h.err = h.classify(err)
	}
	if h.stdin != nil {
		h.stdinMu.Lock()
		_ = h.stdin.Close()
		h.stdinMu.Unlock()
	}
	if h.group != nil {
		h.group.remove(h)
	}
	h.logger.Debug("process exited",
		slog.String("path", h.path),
		slog.Int("pid", h.PID()),
		slog.Int64("duration_ms", h.duration.Milliseconds()),
		slog.Any("error", h.err))
	close(h.done)
}

func (h *Handle) classify(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return &embctlerrors.ProcessError{
			Path:     h.path,
			ExitCode: code,
			Killed:   code < 0 || h.terminated.Load(),
			Cause:    err,
		}
	}
	return &embctlerrors.ProcessError{Path: h.path, ExitCode: -1, Killed: h.terminated.Load(), Cause: err}
}

// PID returns the operating system process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Path returns the executable path.
func (h *Handle) Path() string {
	return h.path
}

// Done is closed when the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether the process is still alive.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Wait blocks until exit. It returns the Outcome on exit code 0.
func (h *Handle) Wait() (*Outcome, error) {
	<-h.done
	if h.err != nil {
		return nil, h.err
	}
	return &Outcome{PID: h.PID(), ExitCode: 0, Duration: h.duration}, nil
}

// Err returns the exit error once the process is done, nil before.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// WriteLine writes text plus a newline to the process input.
func (h *Handle) WriteLine(text string) error {
	if h.stdin == nil {
		return ErrNoStdin
	}
	if !h.Running() {
		return ErrNotRunning
	}
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		return fmt.Errorf("write command input: %w", err)
	}
	return nil
}

// Terminate asks the process to exit, escalating to a kill after grace.
// It returns once the process is gone. Calling it on an exited process is a no-op.
func (h *Handle) Terminate(grace time.Duration) error {
	if !h.Running() {
		return nil
	}
	h.terminated.Store(true)

	if err := signalTerminate(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Debug("terminate signal failed, killing", slog.Int("pid", h.PID()), slog.Any("error", err))
		_ = signalKill(h.cmd.Process)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
	}

	if err := signalKill(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", h.PID(), err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process %d did not exit after kill", h.PID())
	}
}
