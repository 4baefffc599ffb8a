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

// Package build runs the compile, link and image conversion pipeline for a
// firmware project using an external toolchain.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/embctl/internal/log"
	"github.com/tombee/embctl/internal/metrics"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/slot"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/tracing"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Operation is the slot name used in busy errors.
const Operation = "build"

const separator = "============================================================\n"

// Result is the outcome of one build attempt.
type Result struct {
	ID        string
	Project   string
	Processor string
	Toolchain string
	Success   bool

	// Artifacts lists every produced file in production order.
	Artifacts []string
	Objects   []string
	// Image is the linked executable (.elf or .out).
	Image string
	Map   string
	// Hex and Bin are set for families with a conversion stage.
	Hex string
	Bin string

	Duration time.Duration

	// Error is the human-readable failure text.
	Error string
	// FailedFile is the source file whose compilation failed.
	FailedFile string
	Cancelled  bool
	// Err is the underlying failure.
	Err error
}

// Orchestrator runs at most one build at a time.
type Orchestrator struct {
	runner *procrun.Runner
	slot   *slot.Slot
	logger *slog.Logger

	mu      sync.Mutex
	history []HistoryEntry
}

// New creates an orchestrator. A nil logger uses slog.Default().
func New(runner *procrun.Runner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner: runner,
		slot:   slot.New(Operation),
		logger: log.WithComponent(logger, "build"),
	}
}

// Busy reports whether a build is running.
func (o *Orchestrator) Busy() bool {
	return o.slot.Busy()
}

// Cancel terminates every process of the running build and frees the slot.
// It reports whether a build was running.
func (o *Orchestrator) Cancel() bool {
	return o.slot.Cancel(o.runner.KillGrace())
}

// Build compiles and links p with tc, streaming tool output to sink. Pipeline
// failures are reported in the result; the only error is *errors.BusyError.
func (o *Orchestrator) Build(ctx context.Context, p project.Descriptor, tc toolchain.Descriptor, sink procrun.Sink) (*Result, error) {
	lease, err := o.slot.Acquire()
	if err != nil {
		metrics.RecordBusy(Operation)
		return nil, err
	}
	defer lease.Release()

	if sink == nil {
		sink = procrun.Discard
	}

	res := &Result{
		ID:        uuid.NewString(),
		Project:   p.Name,
		Processor: p.Processor.String(),
		Toolchain: tc.Name,
	}
	tracker := log.Begin(o.logger, log.Operation{
		Name:    Operation,
		Project: p.Name,
		Family:  p.Processor.String(),
		Attrs:   []slog.Attr{slog.String(log.ToolchainKey, tc.ID)},
	})
	ctx, span := tracing.StartOperation(ctx, Operation, p.Name, p.Processor.String())

	start := time.Now()
	err = o.run(ctx, lease, p, tc, sink, res, tracker.Logger())
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		res.Cancelled = lease.Cancelled() || errors.Is(ctx.Err(), context.Canceled)
		if res.Cancelled {
			res.Error = "build cancelled"
		} else {
			res.Error = err.Error()
		}
		sink.Append(fmt.Sprintf("\nBuild failed: %s\n", res.Error))
	} else {
		res.Success = true
		sink.Append(fmt.Sprintf("\nBuild completed successfully in %.2fs\n", res.Duration.Seconds()))
	}

	span.SetAttributes(map[string]any{
		"build.id":        res.ID,
		"build.objects":   len(res.Objects),
		"build.success":   res.Success,
		"build.cancelled": res.Cancelled,
	})
	span.End(err)
	metrics.RecordBuild(res.Processor, res.Success, res.Duration)
	o.record(res)
	tracker.Finish(log.Outcome{
		Success: res.Success,
		Error:   res.Error,
		Attrs:   []slog.Attr{slog.Int("objects", len(res.Objects))},
	})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, lease *slot.Lease, p project.Descriptor, tc toolchain.Descriptor, sink procrun.Sink, res *Result, logger *slog.Logger) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if want := p.Processor.Toolchain(); tc.Family != want {
		return &embctlerrors.PreconditionError{
			Kind:    embctlerrors.KindUnsupportedFamily,
			Subject: tc.Family.String(),
			Message: fmt.Sprintf("toolchain cannot build %s projects", p.Processor),
			Hint:    fmt.Sprintf("select a %s toolchain", want),
		}
	}
	if _, err := os.Stat(tc.CompilerPath()); err != nil {
		return embctlerrors.NewMissingTool(tc.CompilerPath(), "run 'embctl toolchain detect' or add the toolchain manually")
	}

	buildDir := p.BuildPath()
	sink.Append(fmt.Sprintf("Building project: %s\n", p.Name))
	sink.Append(fmt.Sprintf("Processor: %s\n", p.Processor))
	sink.Append(fmt.Sprintf("Toolchain: %s\n", tc.Name))
	sink.Append(fmt.Sprintf("Build directory: %s\n", buildDir))
	sink.Append(separator)

	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return embctlerrors.Wrap(err, "creating build directory")
	}

	sources, err := FindSources(p.SourcePath(), p.Processor)
	if err != nil {
		return embctlerrors.Wrap(err, "enumerating sources")
	}
	if len(sources) == 0 {
		return &embctlerrors.PreconditionError{
			Kind:    embctlerrors.KindNoSources,
			Subject: p.SourcePath(),
			Message: "no source files found",
			Hint:    fmt.Sprintf("add %s files under the source directory", strings.Join(p.Processor.SourceExtensions(), " or ")),
		}
	}
	sink.Append(fmt.Sprintf("Found %d source files\n", len(sources)))
	logger.Debug("sources enumerated", slog.Int("count", len(sources)))

	pl, err := newPlan(p, tc, sources)
	if err != nil {
		return err
	}

	for _, s := range pl.compiles {
		if err := o.step(ctx, lease, s, sink); err != nil {
			res.FailedFile = filepath.Base(s.source)
			return fmt.Errorf("compilation failed for %s: %w", res.FailedFile, err)
		}
		res.Objects = append(res.Objects, s.output)
		res.Artifacts = append(res.Artifacts, s.output)
	}

	if err := o.step(ctx, lease, pl.link, sink); err != nil {
		return fmt.Errorf("linking failed: %w", err)
	}
	res.Image = pl.image
	res.Map = pl.mapFile
	res.Artifacts = append(res.Artifacts, pl.image, pl.mapFile)

	for _, s := range pl.post {
		if err := o.step(ctx, lease, s, sink); err != nil {
			return fmt.Errorf("%s stage failed: %w", s.stage, err)
		}
		switch s.stage {
		case StageHex:
			res.Hex = s.output
			res.Artifacts = append(res.Artifacts, s.output)
		case StageBinary:
			res.Bin = s.output
			res.Artifacts = append(res.Artifacts, s.output)
		}
	}
	return nil
}

func (o *Orchestrator) step(ctx context.Context, lease *slot.Lease, s step, sink procrun.Sink) error {
	if lease.Cancelled() {
		return context.Canceled
	}
	ctx, span := tracing.StartStage(ctx, s.stage)
	if s.source != "" {
		span.SetAttributes(map[string]any{"build.source": s.source})
	}
	sink.Append(s.banner)
	_, err := o.runner.Run(ctx, s.cmd, sink, procrun.WithGroup(lease.Group()))
	span.End(err)
	return err
}

// Clean removes the regular files directly inside the project's build
// directory and returns how many were removed. A missing directory is not
// an error.
func (o *Orchestrator) Clean(p project.Descriptor) (int, error) {
	dir := p.BuildPath()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, embctlerrors.Wrap(err, "reading build directory")
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, embctlerrors.Wrapf(err, "removing %s", e.Name())
		}
		removed++
	}
	o.logger.Info("build directory cleaned",
		slog.String(log.ProjectKey, p.Name),
		slog.Int("removed", removed))
	return removed, nil
}
