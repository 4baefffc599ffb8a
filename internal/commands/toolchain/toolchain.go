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

// Package toolchain implements the toolchain registry commands.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/commands/shared"
	toolchainpkg "github.com/tombee/embctl/internal/toolchain"
)

// NewCommand creates the toolchain command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "toolchain",
		Aliases: []string{"toolchains", "tc"},
		Short:   "Manage installed compiler toolchains",
		Long: `Detect, register and validate the ARM GCC and TI C6000 code generation
toolchains used by build, flash and debug.`,
	}
	cmd.AddCommand(
		newDetectCmd(),
		newListCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newValidateCmd(),
		newSelectCmd(),
	)
	return cmd
}

// withApp runs fn with a wired application and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *shared.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := shared.NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)
	return fn(ctx, app)
}

// Entry is the JSON form of a registered toolchain.
type Entry struct {
	toolchainpkg.Descriptor
	Valid   *bool  `json:"valid,omitempty"`
	Problem string `json:"problem,omitempty"`
}

func printTable(w io.Writer, entries []Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFAMILY\tVERSION\tROOT\tSTATUS")
	for _, e := range entries {
		status := "-"
		if e.Valid != nil {
			status = shared.RenderStatus(*e.Valid, "OK")
			if !*e.Valid {
				status = shared.RenderStatus(false, "INVALID") + " " + e.Problem
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Family, e.Version, e.Root, status)
	}
	tw.Flush()
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Scan well-known locations and PATH for toolchains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *shared.App) error {
				found, err := app.Registry.Detect(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				entries := make([]Entry, len(found))
				for i, d := range found {
					entries[i] = Entry{Descriptor: d}
				}
				if shared.GetJSON() {
					return shared.EmitJSON(out, struct {
						shared.JSONResponse
						Toolchains []Entry `json:"toolchains"`
					}{shared.NewJSONResponse("toolchain detect", true), entries})
				}
				if len(found) == 0 {
					fmt.Fprintln(out, shared.RenderWarn("No toolchains found."))
					fmt.Fprintln(out, "Add one with 'embctl toolchain add <root> --family arm-gcc|ti-cgt'.")
					return nil
				}
				fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Found %d toolchain(s)", len(found))))
				printTable(out, entries)
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered toolchains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *shared.App) error {
				list := app.Registry.List()
				entries := make([]Entry, len(list))
				for i, d := range list {
					entries[i] = Entry{Descriptor: d}
					if check {
						v := app.Registry.Validate(ctx, d)
						entries[i].Valid = &v.Valid
						entries[i].Problem = v.Message
					}
				}

				out := cmd.OutOrStdout()
				if shared.GetJSON() {
					return shared.EmitJSON(out, struct {
						shared.JSONResponse
						Toolchains []Entry `json:"toolchains"`
					}{shared.NewJSONResponse("toolchain list", true), entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No toolchains registered.")
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Run 'embctl toolchain detect' to find installed toolchains.")
					return nil
				}
				printTable(out, entries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Validate every toolchain")
	return cmd
}
