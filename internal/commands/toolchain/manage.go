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

package toolchain

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/commands/completion"
	"github.com/tombee/embctl/internal/commands/shared"
	"github.com/tombee/embctl/internal/family"
	toolchainpkg "github.com/tombee/embctl/internal/toolchain"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

func newAddCmd() *cobra.Command {
	var (
		famName string
		name    string
		version string
	)
	cmd := &cobra.Command{
		Use:   "add <root>",
		Short: "Register a toolchain installed at root",
		Example: `  embctl toolchain add /opt/gcc-arm-none-eabi-10.3 --family arm-gcc
  embctl toolchain add ~/ti/ti-cgt-c6000_8.3.12 --family ti-cgt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := family.ParseToolchain(famName)
			if err != nil {
				return &embctlerrors.ValidationError{Field: "family", Message: err.Error(), Suggestion: "use arm-gcc or ti-cgt"}
			}
			return withApp(cmd, func(ctx context.Context, app *shared.App) error {
				d, err := app.Registry.Add(ctx, toolchainpkg.Descriptor{
					Family:  fam,
					Root:    args[0],
					Name:    name,
					Version: version,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if shared.GetJSON() {
					return shared.EmitJSON(out, struct {
						shared.JSONResponse
						Toolchain toolchainpkg.Descriptor `json:"toolchain"`
					}{shared.NewJSONResponse("toolchain add", true), d})
				}
				fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Added %s (%s)", d.Name, d.ID)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&famName, "family", "", "Toolchain family: arm-gcc or ti-cgt")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&version, "version", "", "Version (probed when empty)")
	_ = cmd.MarkFlagRequired("family")
	_ = cmd.RegisterFlagCompletionFunc("family", completion.CompleteToolchainFamilies)
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "remove <id>",
		Aliases:           []string{"rm"},
		Short:             "Unregister a toolchain",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteToolchainArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *shared.App) error {
				if err := app.Registry.Remove(ctx, args[0]); err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), shared.NewJSONResponse("toolchain remove", true))
				}
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Removed "+args[0]))
				return nil
			})
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "validate <id>",
		Short:             "Check that a toolchain's compiler runs",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteToolchainArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *shared.App) error {
				d, ok := app.Registry.Get(args[0])
				if !ok {
					return &embctlerrors.NotFoundError{Resource: "toolchain", ID: args[0]}
				}
				v := app.Registry.Validate(ctx, d)

				out := cmd.OutOrStdout()
				if shared.GetJSON() {
					if err := shared.EmitJSON(out, struct {
						shared.JSONResponse
						Valid   bool   `json:"valid"`
						Reason  string `json:"reason,omitempty"`
						Message string `json:"message,omitempty"`
						Version string `json:"version,omitempty"`
					}{shared.NewJSONResponse("toolchain validate", v.Valid), v.Valid, reason(v), v.Message, v.Version}); err != nil {
						return err
					}
				} else if v.Valid {
					fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s is valid (version %s)", d.ID, v.Version)))
				} else {
					fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("%s is invalid: %s", d.ID, v.Message)))
				}
				if !v.Valid {
					return &shared.ExitError{Code: shared.ExitPrecondition, Message: "toolchain invalid"}
				}
				return nil
			})
		},
	}
}

func reason(v toolchainpkg.Validation) string {
	if v.Valid {
		return ""
	}
	return v.Reason.String()
}

func newSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <processor>",
		Short: "Show the toolchain that would build a processor family",
		Long: `Print the first registered toolchain of the processor's toolchain family
that validates now. Processors: stm32, c67xx.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteProcessors,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := family.ParseProcessor(args[0])
			if err != nil {
				return &embctlerrors.ValidationError{Field: "processor", Message: err.Error(), Suggestion: "use stm32 or c67xx"}
			}
			return withApp(cmd, func(ctx context.Context, app *shared.App) error {
				d, ok := app.Registry.SelectBest(ctx, proc)
				if !ok {
					return &embctlerrors.PreconditionError{
						Kind:    embctlerrors.KindMissingTool,
						Subject: proc.Toolchain().String(),
						Message: "no valid toolchain registered",
						Hint:    "run 'embctl toolchain detect' or 'embctl toolchain add'",
					}
				}
				out := cmd.OutOrStdout()
				if shared.GetJSON() {
					return shared.EmitJSON(out, struct {
						shared.JSONResponse
						Toolchain toolchainpkg.Descriptor `json:"toolchain"`
					}{shared.NewJSONResponse("toolchain select", true), d})
				}
				fmt.Fprintf(out, "%s\t%s\n", d.ID, d.Root)
				return nil
			})
		},
	}
}
