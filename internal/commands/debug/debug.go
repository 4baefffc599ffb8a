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

// Package debug implements the debug command.
package debug

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/commands/completion"
	"github.com/tombee/embctl/internal/commands/shared"
	debugpkg "github.com/tombee/embctl/internal/debug"
	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/toolchain"
)

// DefaultArtifact is the image loaded by the debugger: the ELF for STM32
// and the linked executable for C67xx.
func DefaultArtifact(p project.Descriptor) string {
	if p.Processor == family.C67xx {
		return p.Artifact(".out")
	}
	return p.Artifact(".elf")
}

// NewDebugCommand creates the debug command.
func NewDebugCommand() *cobra.Command {
	var (
		artifact    string
		toolchainID string
	)
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Start an on-target debug session",
		Long: `Start OpenOCD, wait for its control port, then attach arm-none-eabi-gdb
and forward every line typed to the debugger. Type quit or press Ctrl+D to
end the session; both processes are stopped together.

C67xx projects are debugged in Code Composer Studio. The command prints the
steps and exits with code 5.`,
		Example: `  embctl debug
  EMBCTL_DEBUG_PORT=4444 embctl debug --artifact build/blinky.elf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDebug(cmd, artifact, toolchainID)
		},
	}
	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "Image to debug (default: the project's .elf or .out)")
	cmd.Flags().StringVarP(&toolchainID, "toolchain", "t", "", "Registered toolchain id")
	_ = cmd.RegisterFlagCompletionFunc("toolchain", completion.CompleteToolchainIDs)
	_ = cmd.RegisterFlagCompletionFunc("artifact", completion.CompleteArtifacts)
	return cmd
}

type sessionJSON struct {
	shared.JSONResponse
	ID        string `json:"id"`
	Project   string `json:"project"`
	Processor string `json:"processor"`
	Artifact  string `json:"artifact"`
	Address   string `json:"address,omitempty"`
	ServerPID int    `json:"server_pid,omitempty"`
	ClientPID int    `json:"client_pid,omitempty"`
	Advisory  bool   `json:"advisory,omitempty"`
	Note      string `json:"note,omitempty"`
}

func runDebug(cmd *cobra.Command, artifact, toolchainID string) error {
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

	// Only the ARM path starts a toolchain debugger.
	tc := toolchain.Descriptor{Family: p.Processor.Toolchain()}
	if p.Processor == family.STM32 {
		if tc, err = app.ResolveToolchain(ctx, p, toolchainID); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	sess, err := app.Debug.Start(ctx, p, tc, artifact, shared.OutputSink(out))
	if err != nil {
		return err
	}
	defer app.Debug.Stop()

	if shared.GetJSON() {
		if err := shared.EmitJSON(out, sessionJSON{
			JSONResponse: shared.NewJSONResponse("debug", !sess.Advisory),
			ID:           sess.ID,
			Project:      sess.Project,
			Processor:    sess.Processor.String(),
			Artifact:     sess.Artifact,
			Address:      sess.Address(),
			ServerPID:    sess.ServerPID(),
			ClientPID:    sess.ClientPID(),
			Advisory:     sess.Advisory,
			Note:         sess.Note,
		}); err != nil {
			return err
		}
	}
	if sess.Advisory {
		if !shared.GetJSON() {
			fmt.Fprintln(out, shared.RenderWarn(sess.Note))
		}
		return shared.NewAdvisoryError(sess.Note)
	}

	// Interrupts are handled by the shell so Ctrl+C does not tear the
	// session down mid-command.
	shell := debugpkg.NewShell(app.Debug, sess, cmd.InOrStdin(), out)
	return shell.Run(context.WithoutCancel(ctx))
}
