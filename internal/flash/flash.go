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

// Package flash programs build artifacts into target devices through vendor
// programming tools.
package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/log"
	"github.com/tombee/embctl/internal/metrics"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/slot"
	"github.com/tombee/embctl/internal/tools"
	"github.com/tombee/embctl/internal/tracing"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Operation is the slot name used in busy errors.
const Operation = "flash"

// FlashBase is the STM32 internal flash start address.
const FlashBase = "0x08000000"

const separator = "============================================================\n"

// ManualSuggestions are offered when no DSP flashing utility is installed.
var ManualSuggestions = []string{
	"Code Composer Studio",
	"UniFlash",
	"XDS emulator software",
}

// ToolFinder resolves programming tool executables.
type ToolFinder interface {
	Find(k tools.Kind) (string, bool)
}

// Result is the outcome of a flash attempt.
type Result struct {
	Success bool
	// Tool is the programmer that ran, e.g. "ST-Link".
	Tool    string
	Address string
	// Advisory marks a result that needs manual programming.
	Advisory    bool
	Note        string
	Suggestions []string
	Duration    time.Duration
	Error       string
	Cancelled   bool
	Err         error
}

// EraseResult is the outcome of a mass erase.
type EraseResult struct {
	Success   bool
	Tool      string
	Duration  time.Duration
	Error     string
	Cancelled bool
	Err       error
}

// Orchestrator runs at most one flash or erase at a time.
type Orchestrator struct {
	runner *procrun.Runner
	finder ToolFinder
	slot   *slot.Slot
	logger *slog.Logger
}

// New creates an orchestrator. A nil logger uses slog.Default().
func New(runner *procrun.Runner, finder ToolFinder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner: runner,
		finder: finder,
		slot:   slot.New(Operation),
		logger: log.WithComponent(logger, "flash"),
	}
}

// Busy reports whether a flash or erase is running.
func (o *Orchestrator) Busy() bool {
	return o.slot.Busy()
}

// Cancel terminates the running programmer and frees the slot. Partially
// written flash is left as is.
func (o *Orchestrator) Cancel() bool {
	return o.slot.Cancel(o.runner.KillGrace())
}

// Flash writes artifact to the target of p. Expected failures, including the
// advisory result for families without an installed flasher, are reported in
// the result; the only error is *errors.BusyError.
func (o *Orchestrator) Flash(ctx context.Context, p project.Descriptor, artifact string, sink procrun.Sink) (*Result, error) {
	lease, err := o.slot.Acquire()
	if err != nil {
		metrics.RecordBusy(Operation)
		return nil, err
	}
	defer lease.Release()

	if sink == nil {
		sink = procrun.Discard
	}
	tracker := log.Begin(o.logger, log.Operation{
		Name:    Operation,
		Project: p.Name,
		Family:  p.Processor.String(),
		Attrs:   []slog.Attr{slog.String("artifact", artifact)},
	})
	ctx, span := tracing.StartOperation(ctx, Operation, p.Name, p.Processor.String())

	sink.Append(fmt.Sprintf("Flashing project: %s\n", p.Name))
	sink.Append(fmt.Sprintf("Processor: %s\n", p.Processor))
	sink.Append(fmt.Sprintf("Artifact: %s\n", artifact))
	sink.Append(separator)

	start := time.Now()
	res := o.flash(ctx, lease, p, artifact, sink)
	res.Duration = time.Since(start)
	if res.Err != nil {
		res.Cancelled = lease.Cancelled() || errors.Is(ctx.Err(), context.Canceled)
		if res.Cancelled {
			res.Error = "flash cancelled"
		} else if res.Error == "" {
			res.Error = res.Err.Error()
		}
	}

	sink.Append("\n" + separator)
	switch {
	case res.Success:
		sink.Append(fmt.Sprintf("Flash completed successfully in %.2fs\n", res.Duration.Seconds()))
	case res.Advisory:
		sink.Append(fmt.Sprintf("Manual programming required: %s\n", res.Note))
	default:
		sink.Append(fmt.Sprintf("Flash failed: %s\n", res.Error))
		sink.Append(fmt.Sprintf("Elapsed: %.2fs\n", res.Duration.Seconds()))
	}

	tool := res.Tool
	if tool == "" {
		tool = "none"
	}
	outcome := metrics.OutcomeFailure
	switch {
	case res.Success:
		outcome = metrics.OutcomeSuccess
	case res.Advisory:
		outcome = metrics.OutcomeAdvisory
	}
	metrics.RecordFlash(tool, outcome)
	span.SetAttributes(map[string]any{
		"flash.tool":     tool,
		"flash.outcome":  outcome,
		"flash.artifact": artifact,
	})
	span.End(res.Err)
	tracker.Finish(log.Outcome{
		Success:  res.Success,
		Advisory: res.Advisory,
		Error:    res.Error,
		Attrs:    []slog.Attr{slog.String(log.ToolKey, tool)},
	})
	return res, nil
}

func (o *Orchestrator) flash(ctx context.Context, lease *slot.Lease, p project.Descriptor, artifact string, sink procrun.Sink) *Result {
	if _, err := os.Stat(artifact); err != nil {
		pe := embctlerrors.NewMissingFile(artifact)
		pe.Hint = "build the project first"
		return &Result{Err: pe}
	}

	switch p.Processor {
	case family.STM32:
		return o.flashSTM32(ctx, lease, artifact, sink)
	case family.C67xx:
		return o.flashC67xx(ctx, lease, p, artifact, sink)
	default:
		return &Result{Err: embctlerrors.NewUnsupportedFamily(p.Processor.String(), "flashing")}
	}
}

func (o *Orchestrator) flashSTM32(ctx context.Context, lease *slot.Lease, artifact string, sink procrun.Sink) *Result {
	if path, ok := o.finder.Find(tools.STLink); ok {
		sink.Append("Using ST-Link utility\n")
		return o.program(ctx, lease, tools.STLink, STLinkProgramArgs(artifact), path, sink)
	}
	if path, ok := o.finder.Find(tools.OpenOCD); ok {
		sink.Append("Using OpenOCD\n")
		return o.program(ctx, lease, tools.OpenOCD, OpenOCDProgramArgs(artifact), path, sink)
	}
	return &Result{
		Error: "no programming tool found",
		Err:   embctlerrors.NewMissingTool("ST-Link or OpenOCD", "install the ST-Link utility or OpenOCD, or set tools.stlink / tools.openocd"),
	}
}

func (o *Orchestrator) flashC67xx(ctx context.Context, lease *slot.Lease, p project.Descriptor, artifact string, sink procrun.Sink) *Result {
	sink.Append("Preparing DSP program download\n")
	sink.Append("Make sure the XDS emulator is connected\n")

	path, ok := o.finder.Find(tools.UniFlash)
	if !ok {
		sink.Append("\nNo TI flashing utility found\n")
		sink.Append("Program the target manually with one of:\n")
		for i, s := range ManualSuggestions {
			sink.Append(fmt.Sprintf("%d. %s\n", i+1, s))
		}
		return &Result{
			Advisory:    true,
			Note:        "program the target manually with TI tools",
			Suggestions: append([]string(nil), ManualSuggestions...),
		}
	}

	ccxml := p.TargetConfigPath()
	if ccxml == "" {
		return &Result{
			Tool: tools.UniFlash.String(),
			Err: &embctlerrors.PreconditionError{
				Kind:    embctlerrors.KindMissingFile,
				Subject: "target_config",
				Message: "target configuration required",
				Hint:    "set target_config in project.yaml to the .ccxml file of the emulator",
			},
		}
	}
	if _, err := os.Stat(ccxml); err != nil {
		return &Result{Tool: tools.UniFlash.String(), Err: embctlerrors.NewMissingFile(ccxml)}
	}

	sink.Append("Using UniFlash\n")
	res := o.program(ctx, lease, tools.UniFlash, UniFlashProgramArgs(ccxml, artifact), path, sink)
	res.Address = ""
	return res
}

func (o *Orchestrator) program(ctx context.Context, lease *slot.Lease, kind tools.Kind, args []string, path string, sink procrun.Sink) *Result {
	res := &Result{Tool: kind.String(), Address: FlashBase}
	cmd := procrun.Command{Path: path, Args: args}

	ctx, span := tracing.StartStage(ctx, "program")
	_, err := o.runner.Run(ctx, cmd, sink, procrun.WithGroup(lease.Group()))
	span.End(err)
	if err != nil {
		res.Err = err
		res.Error = fmt.Sprintf("%s programming failed: %v", kind, err)
		return res
	}
	res.Success = true
	return res
}

// Erase mass-erases the target flash of p. Only STM32 targets with the
// ST-Link utility installed can be erased; other cases return an error
// before any process starts.
func (o *Orchestrator) Erase(ctx context.Context, p project.Descriptor, sink procrun.Sink) (*EraseResult, error) {
	lease, err := o.slot.Acquire()
	if err != nil {
		metrics.RecordBusy(Operation)
		return nil, err
	}
	defer lease.Release()

	if sink == nil {
		sink = procrun.Discard
	}
	if p.Processor != family.STM32 {
		return nil, embctlerrors.NewUnsupportedFamily(p.Processor.String(), "flash erase")
	}
	path, ok := o.finder.Find(tools.STLink)
	if !ok {
		return nil, embctlerrors.NewMissingTool(tools.STLink.String(), "install the ST-Link utility or set tools.stlink")
	}

	tracker := log.Begin(o.logger, log.Operation{
		Name:    "erase",
		Project: p.Name,
		Family:  p.Processor.String(),
	})
	ctx, span := tracing.StartOperation(ctx, "erase", p.Name, p.Processor.String())

	sink.Append(fmt.Sprintf("Erasing flash: %s\n", p.Name))
	sink.Append(fmt.Sprintf("Processor: %s\n", p.Processor))
	sink.Append(separator)

	res := &EraseResult{Tool: tools.STLink.String()}
	start := time.Now()
	_, err = o.runner.Run(ctx, procrun.Command{Path: path, Args: STLinkEraseArgs()}, sink, procrun.WithGroup(lease.Group()))
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.Cancelled = lease.Cancelled()
		if res.Cancelled {
			res.Error = "erase cancelled"
		} else {
			res.Error = fmt.Sprintf("flash erase failed: %v", err)
		}
		sink.Append(res.Error + "\n")
	} else {
		res.Success = true
		sink.Append("Flash erased\n")
	}

	metrics.RecordFlash(res.Tool+" erase", outcomeOf(res.Success))
	span.End(err)
	tracker.Finish(log.Outcome{Success: res.Success, Error: res.Error})
	return res, nil
}

func outcomeOf(success bool) string {
	if success {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomeFailure
}
