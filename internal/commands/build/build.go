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

// Package build implements the build and clean commands.
package build

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	buildpkg "github.com/tombee/embctl/internal/build"
	"github.com/tombee/embctl/internal/commands/completion"
	"github.com/tombee/embctl/internal/commands/shared"
)

// NewCommand creates the build command.
func NewCommand() *cobra.Command {
	var (
		toolchainID string
		clean       bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile and link the project",
		Long: `Compile every source file of the project, link the image and, for STM32
projects, produce .hex and .bin files and print the section sizes.

The toolchain is the first valid registered toolchain for the project's
processor family unless --toolchain names one.`,
		Example: `  embctl build
  embctl -C ./firmware build --toolchain arm-gcc-10.3.1
  embctl build --clean --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, toolchainID, clean)
		},
	}
	cmd.Flags().StringVarP(&toolchainID, "toolchain", "t", "", "Registered toolchain id")
	cmd.Flags().BoolVar(&clean, "clean", false, "Remove build outputs first")
	_ = cmd.RegisterFlagCompletionFunc("toolchain", completion.CompleteToolchainIDs)
	return cmd
}

// resultJSON is the JSON form of a build result.
type resultJSON struct {
	shared.JSONResponse
	ID         string   `json:"id"`
	Project    string   `json:"project"`
	Processor  string   `json:"processor"`
	Toolchain  string   `json:"toolchain"`
	Artifacts  []string `json:"artifacts,omitempty"`
	Image      string   `json:"image,omitempty"`
	Map        string   `json:"map,omitempty"`
	Hex        string   `json:"hex,omitempty"`
	Bin        string   `json:"bin,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
	FailedFile string   `json:"failed_file,omitempty"`
	Cancelled  bool     `json:"cancelled,omitempty"`
}

func runBuild(cmd *cobra.Command, toolchainID string, clean bool) error {
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
	tc, err := app.ResolveToolchain(ctx, p, toolchainID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if clean {
		if _, err := app.Build.Clean(p); err != nil {
			return err
		}
	}

	res, err := app.Build.Build(ctx, p, tc, shared.OutputSink(out))
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(out, toJSON(res)); err != nil {
			return err
		}
	} else if !shared.GetQuiet() {
		printSummary(out, res)
	}
	if !res.Success {
		return shared.NewResultError(res.Error, res.Err)
	}
	return nil
}

func toJSON(res *buildpkg.Result) resultJSON {
	return resultJSON{
		JSONResponse: shared.NewJSONResponse("build", res.Success),
		ID:           res.ID,
		Project:      res.Project,
		Processor:    res.Processor,
		Toolchain:    res.Toolchain,
		Artifacts:    res.Artifacts,
		Image:        res.Image,
		Map:          res.Map,
		Hex:          res.Hex,
		Bin:          res.Bin,
		DurationMS:   res.Duration.Milliseconds(),
		Error:        res.Error,
		FailedFile:   res.FailedFile,
		Cancelled:    res.Cancelled,
	}
}

func printSummary(w io.Writer, res *buildpkg.Result) {
	fmt.Fprintln(w)
	if !res.Success {
		fmt.Fprintln(w, shared.RenderError("Build failed: "+res.Error))
		return
	}
	fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("Built %s in %.2fs", res.Project, res.Duration.Seconds())))
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("artifact"), a)
	}
}

// NewCleanCommand creates the clean command.
func NewCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove build outputs",
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
			n, err := app.Build.Clean(p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Removed int `json:"removed"`
				}{shared.NewJSONResponse("clean", true), n})
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Removed %d file(s) from %s", n, p.BuildPath())))
			return nil
		},
	}
}
