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

// Package flash implements the flash and erase commands.
package flash

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/commands/completion"
	"github.com/tombee/embctl/internal/commands/shared"
	"github.com/tombee/embctl/internal/family"
	flashpkg "github.com/tombee/embctl/internal/flash"
	"github.com/tombee/embctl/internal/project"
)

// DefaultArtifact is the image flashed when --artifact is not given: the
// raw binary for STM32 and the linked executable for C67xx.
func DefaultArtifact(p project.Descriptor) string {
	if p.Processor == family.C67xx {
		return p.Artifact(".out")
	}
	return p.Artifact(".bin")
}

// NewCommand creates the flash command.
func NewCommand() *cobra.Command {
	var (
		artifact    string
		build       bool
		toolchainID string
	)
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Program the built image into the target",
		Long: `Program the project's image into the connected target.

STM32 targets are programmed with the ST-Link utility when installed and
with OpenOCD otherwise, at flash base 0x08000000. C67xx targets are
programmed with UniFlash using the project's target_config; without
UniFlash the command prints the manual alternatives and exits with code 5.`,
		Example: `  embctl flash
  embctl flash --build
  embctl flash --artifact build/blinky.elf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFlash(cmd, artifact, build, toolchainID)
		},
	}
	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "Image to program (default: the project's .bin or .out)")
	cmd.Flags().BoolVar(&build, "build", false, "Build the project first")
	cmd.Flags().StringVarP(&toolchainID, "toolchain", "t", "", "Toolchain id used with --build")
	_ = cmd.RegisterFlagCompletionFunc("toolchain", completion.CompleteToolchainIDs)
	_ = cmd.RegisterFlagCompletionFunc("artifact", completion.CompleteArtifacts)
	return cmd
}

type resultJSON struct {
	shared.JSONResponse
	Tool        string   `json:"tool,omitempty"`
	Address     string   `json:"address,omitempty"`
	Artifact    string   `json:"artifact"`
	Advisory    bool     `json:"advisory,omitempty"`
	Note        string   `json:"note,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
	Cancelled   bool     `json:"cancelled,omitempty"`
}

func runFlash(cmd *cobra.Command, artifact string, build bool, toolchainID string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := shared.NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	p, err := shared.LoadProject()
	if err != nil {
		return err
	}
	if artifact == "" {
		artifact = DefaultArtifact(p)
	}
	out := cmd.OutOrStdout()
	sink := shared.OutputSink(out)

	if build {
		tc, err := app.ResolveToolchain(ctx, p, toolchainID)
		if err != nil {
			return err
		}
		br, err := app.Build.Build(ctx, p, tc, sink)
		if err != nil {
			return err
		}
		if !br.Success {
			return shared.NewResultError(br.Error, br.Err)
		}
	}

	res, err := app.Flash.Flash(ctx, p, artifact, sink)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(out, resultJSON{
			JSONResponse: shared.NewJSONResponse("flash", res.Success),
			Tool:         res.Tool,
			Address:      res.Address,
			Artifact:     artifact,
			Advisory:     res.Advisory,
			Note:         res.Note,
			Suggestions:  res.Suggestions,
			DurationMS:   res.Duration.Milliseconds(),
			Error:        res.Error,
			Cancelled:    res.Cancelled,
		}); err != nil {
			return err
		}
	} else if !shared.GetQuiet() {
		printSummary(out, res)
	}

	switch {
	case res.Success:
		return nil
	case res.Advisory:
		return shared.NewAdvisoryError(res.Note)
	default:
		return shared.NewResultError(res.Error, res.Err)
	}
}

func printSummary(w io.Writer, res *flashpkg.Result) {
	fmt.Fprintln(w)
	switch {
	case res.Success:
		msg := fmt.Sprintf("Programmed with %s", res.Tool)
		if res.Address != "" {
			msg += " at " + res.Address
		}
		fmt.Fprintln(w, shared.RenderOK(msg))
	case res.Advisory:
		fmt.Fprintln(w, shared.RenderWarn(res.Note))
		if len(res.Suggestions) > 0 {
			fmt.Fprintln(w, "Program the target manually with one of:")
			for _, s := range res.Suggestions {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
	default:
		fmt.Fprintln(w, shared.RenderError("Flash failed: "+res.Error))
	}
}

// NewEraseCommand creates the erase command.
func NewEraseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Mass-erase the target's flash memory",
		Long:  `Mass-erase an STM32 target over SWD with the ST-Link utility.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app, err := shared.NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			p, err := shared.LoadProject()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			res, err := app.Flash.Erase(ctx, p, shared.OutputSink(out))
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				if err := shared.EmitJSON(out, struct {
					shared.JSONResponse
					Tool       string `json:"tool"`
					DurationMS int64  `json:"duration_ms"`
					Error      string `json:"error,omitempty"`
					Cancelled  bool   `json:"cancelled,omitempty"`
				}{shared.NewJSONResponse("erase", res.Success), res.Tool, res.Duration.Milliseconds(), res.Error, res.Cancelled}); err != nil {
					return err
				}
			} else if !shared.GetQuiet() {
				if res.Success {
					fmt.Fprintln(out, shared.RenderOK("Flash memory erased"))
				} else {
					fmt.Fprintln(out, shared.RenderError("Erase failed: "+res.Error))
				}
			}
			if !res.Success {
				return shared.NewResultError(res.Error, res.Err)
			}
			return nil
		},
	}
}
