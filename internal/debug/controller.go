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

// Package debug supervises an on-chip debug session: a debug server bridging
// the probe and a debugger client attached to the server's control port.
package debug

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/log"
	"github.com/tombee/embctl/internal/metrics"
	"github.com/tombee/embctl/internal/portwait"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/slot"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/tools"
	"github.com/tombee/embctl/internal/tracing"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Operation is the slot name used in busy errors.
const Operation = "debug session"

// Defaults for Options.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 3333
	DefaultReadyTimeout = 5 * time.Second
	DefaultAttachGrace  = time.Second
)

const separator = "============================================================\n"

// ToolFinder resolves debug tool executables.
type ToolFinder interface {
	Find(k tools.Kind) (string, bool)
}

// Options configures the controller.
type Options struct {
	Host string
	Port int
	// ReadyTimeout bounds the wait for the server control port.
	ReadyTimeout time.Duration
	// AttachGrace is how long the client must stay up before the session
	// counts as attached.
	AttachGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.AttachGrace <= 0 {
		o.AttachGrace = DefaultAttachGrace
	}
	return o
}

// Controller runs at most one debug session at a time.
type Controller struct {
	runner *procrun.Runner
	finder ToolFinder
	waiter *portwait.Waiter
	opts   Options
	logger *slog.Logger
	slot   *slot.Slot

	mu      sync.Mutex
	state   State
	session *Session
}

// New creates a controller in the Idle state. A nil waiter probes at
// portwait.DefaultInterval; a nil logger uses slog.Default().
func New(runner *procrun.Runner, finder ToolFinder, waiter *portwait.Waiter, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if waiter == nil {
		waiter = portwait.New(logger)
	}
	return &Controller{
		runner: runner,
		finder: finder,
		waiter: waiter,
		opts:   opts.withDefaults(),
		logger: log.WithComponent(logger, "debug"),
		slot:   slot.New(Operation),
		state:  Idle,
	}
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the current session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("state change", slog.String("from", c.state.String()), slog.String("to", s.String()))
	c.state = s
}

// Start brings up a debug session for artifact. A second Start before Stop
// fails with *errors.BusyError. Any failure tears down the processes started
// so far before it is returned.
func (c *Controller) Start(ctx context.Context, p project.Descriptor, tc toolchain.Descriptor, artifact string, sink procrun.Sink) (*Session, error) {
	lease, err := c.slot.Acquire()
	if err != nil {
		metrics.RecordBusy(Operation)
		return nil, err
	}
	if sink == nil {
		sink = procrun.Discard
	}
	sink = procrun.Synchronized(sink)

	tracker := log.Begin(c.logger, log.Operation{
		Name:    "debug",
		Project: p.Name,
		Family:  p.Processor.String(),
		Attrs:   []slog.Attr{slog.String("artifact", artifact)},
	})
	ctx, span := tracing.StartOperation(ctx, "debug", p.Name, p.Processor.String())

	sink.Append(fmt.Sprintf("Starting debug session: %s\n", p.Name))
	sink.Append(fmt.Sprintf("Processor: %s\n", p.Processor))
	sink.Append(separator)

	sess, err := c.start(ctx, lease, p, tc, artifact, sink)
	if err != nil {
		sink.Append(fmt.Sprintf("Debug session failed to start: %v\n", err))
		c.rollback(lease)
		metrics.RecordDebugStart(p.Processor.String(), metrics.OutcomeFailure)
		span.End(err)
		tracker.Finish(log.Outcome{Error: err.Error()})
		return nil, err
	}

	outcome := metrics.OutcomeSuccess
	if sess.Advisory {
		outcome = metrics.OutcomeAdvisory
	} else {
		metrics.SetDebugActive(true)
	}
	metrics.RecordDebugStart(p.Processor.String(), outcome)
	span.SetAttributes(map[string]any{
		"debug.session_id": sess.ID,
		"debug.advisory":   sess.Advisory,
	})
	span.End(nil)
	tracker.Finish(log.Outcome{
		Success:  !sess.Advisory,
		Advisory: sess.Advisory,
		Attrs:    []slog.Attr{slog.String(log.SessionKey, sess.ID)},
	})
	return sess, nil
}

func (c *Controller) start(ctx context.Context, lease *slot.Lease, p project.Descriptor, tc toolchain.Descriptor, artifact string, sink procrun.Sink) (*Session, error) {
	if _, err := os.Stat(artifact); err != nil {
		pe := embctlerrors.NewMissingFile(artifact)
		pe.Hint = "build the project first"
		return nil, pe
	}

	switch p.Processor {
	case family.STM32:
		return c.startARM(ctx, lease, p, tc, artifact, sink)
	case family.C67xx:
		return c.startAdvisory(p, artifact, sink), nil
	default:
		return nil, embctlerrors.NewUnsupportedFamily(p.Processor.String(), "debugging")
	}
}

func (c *Controller) startARM(ctx context.Context, lease *slot.Lease, p project.Descriptor, tc toolchain.Descriptor, artifact string, sink procrun.Sink) (*Session, error) {
	if tc.Family != family.ArmGCC {
		return nil, &embctlerrors.PreconditionError{
			Kind:    embctlerrors.KindUnsupportedFamily,
			Subject: tc.Family.String(),
			Message: "toolchain has no debugger for stm32 projects",
			Hint:    "select an arm-gcc toolchain",
		}
	}
	gdb := tc.DebuggerPath()
	if _, err := os.Stat(gdb); err != nil {
		return nil, embctlerrors.NewMissingTool(gdb, "the toolchain has no arm-none-eabi-gdb")
	}
	openocd, ok := c.finder.Find(tools.OpenOCD)
	if !ok {
		return nil, embctlerrors.NewMissingTool(tools.OpenOCD.String(), "install OpenOCD, set OPENOCD_PATH or tools.openocd")
	}

	// Session processes outlive the start call; only Stop ends them.
	procCtx := context.WithoutCancel(ctx)
	opts := c.opts

	c.setState(ServerStarting)
	sink.Append("Starting OpenOCD server\n")
	_, span := tracing.StartStage(ctx, "server")
	server, err := c.runner.Start(procCtx,
		procrun.Command{Path: openocd, Args: OpenOCDServerArgs(opts.Port)},
		procrun.Prefixed("[server] ", sink),
		procrun.WithGroup(lease.Group()))
	if err != nil {
		span.End(err)
		return nil, embctlerrors.Wrap(err, "starting debug server")
	}

	waitCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-server.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()
	res, err := c.waiter.Wait(waitCtx, opts.Host, opts.Port, opts.ReadyTimeout)
	cancel()

	if !server.Running() {
		err = fmt.Errorf("debug server exited before port %d opened: %w", opts.Port, exitCause(server))
		span.End(err)
		return nil, err
	}
	if err != nil {
		span.End(err)
		return nil, embctlerrors.Wrap(err, "waiting for debug server")
	}
	if res.Status != portwait.Ready {
		err = &embctlerrors.TimeoutError{Operation: "debug server port", Duration: opts.ReadyTimeout, Cause: res.LastErr}
		span.End(err)
		return nil, err
	}
	span.End(nil)
	c.setState(ServerReady)
	sink.Append("OpenOCD ready\n")

	sink.Append("Starting GDB\n")
	_, span = tracing.StartStage(ctx, "client")
	client, err := c.runner.Start(procCtx,
		procrun.Command{Path: gdb, Args: GDBArgs(artifact, opts.Host, opts.Port)},
		procrun.Prefixed("[client] ", sink),
		procrun.WithStdin(),
		procrun.WithGroup(lease.Group()))
	if err != nil {
		span.End(err)
		return nil, embctlerrors.Wrap(err, "starting debug client")
	}

	select {
	case <-client.Done():
		err = fmt.Errorf("debug client exited while attaching: %w", exitCause(client))
	case <-server.Done():
		err = fmt.Errorf("debug server exited while client was attaching: %w", exitCause(server))
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(opts.AttachGrace):
	}
	span.End(err)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Processor: p.Processor,
		Project:   p.Name,
		Artifact:  artifact,
		StartedAt: time.Now(),
		Host:      opts.Host,
		Port:      opts.Port,
		server:    server,
		client:    client,
		stopped:   make(chan struct{}),
	}

	c.mu.Lock()
	c.session = sess
	c.state = ClientAttached
	c.mu.Unlock()

	sink.Append("Debug session established\n")
	sink.Append(fmt.Sprintf("GDB port: %d\n", opts.Port))
	go c.monitor(lease, sess, sink)
	return sess, nil
}

func (c *Controller) startAdvisory(p project.Descriptor, artifact string, sink procrun.Sink) *Session {
	sink.Append("Starting TI XDS debugger\n")
	sink.Append("Make sure the XDS emulator is connected and the CCS debug tools are installed\n")

	sess := &Session{
		ID:        uuid.NewString(),
		Processor: p.Processor,
		Project:   p.Name,
		Artifact:  artifact,
		StartedAt: time.Now(),
		Advisory:  true,
		Note:      "use Code Composer Studio to debug this project",
		stopped:   make(chan struct{}),
	}

	c.mu.Lock()
	c.session = sess
	c.state = Advisory
	c.mu.Unlock()

	sink.Append("Debug session information prepared\n")
	sink.Append("Import and debug the project in Code Composer Studio\n")
	return sess
}

func exitCause(h *procrun.Handle) error {
	if err := h.Err(); err != nil {
		return err
	}
	return errors.New("exited with code 0")
}

// monitor ends the session when either process exits on its own.
func (c *Controller) monitor(lease *slot.Lease, sess *Session, sink procrun.Sink) {
	select {
	case <-sess.stopped:
		return
	case <-sess.client.Done():
		sink.Append("Debug client exited\n")
	case <-sess.server.Done():
		sink.Append("Debug server exited\n")
	}

	c.mu.Lock()
	current := c.session == sess
	if current {
		c.session = nil
		c.state = Terminated
		sess.markStopped()
	}
	c.mu.Unlock()
	if !current {
		return
	}

	lease.Group().TerminateAll(c.runner.KillGrace())
	lease.Release()
	metrics.SetDebugActive(false)
	c.logger.Info("debug session ended", slog.String(log.SessionKey, sess.ID))
}

func (c *Controller) rollback(lease *slot.Lease) {
	n := lease.Group().TerminateAll(c.runner.KillGrace())
	lease.Release()

	c.mu.Lock()
	c.session = nil
	c.state = Idle
	c.mu.Unlock()
	if n > 0 {
		c.logger.Debug("partial session torn down", slog.Int("processes", n))
	}
}

// SendCommand writes one line to the attached client's command input.
func (c *Controller) SendCommand(text string) error {
	c.mu.Lock()
	sess, state := c.session, c.state
	c.mu.Unlock()

	if sess == nil || sess.client == nil || state != ClientAttached {
		return &embctlerrors.PreconditionError{
			Kind:    embctlerrors.KindNoSession,
			Message: "no debug client attached",
			Hint:    "start a debug session first",
		}
	}
	if err := sess.client.WriteLine(text); err != nil {
		if errors.Is(err, procrun.ErrNotRunning) {
			return &embctlerrors.PreconditionError{
				Kind:    embctlerrors.KindNoSession,
				Message: "debug client has exited",
			}
		}
		return err
	}
	return nil
}

// Stop terminates the session processes and reports whether a session was
// running. Calling it without a session is a no-op.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	if sess != nil {
		c.state = Terminated
		sess.markStopped()
	}
	c.mu.Unlock()

	stopped := c.slot.Cancel(c.runner.KillGrace())
	if sess != nil {
		if !sess.Advisory {
			metrics.SetDebugActive(false)
		}
		c.logger.Info("debug session stopped", slog.String(log.SessionKey, sess.ID))
	}
	return stopped || sess != nil
}
