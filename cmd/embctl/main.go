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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/embctl/internal/cli"
	buildcmd "github.com/tombee/embctl/internal/commands/build"
	"github.com/tombee/embctl/internal/commands/completion"
	debugcmd "github.com/tombee/embctl/internal/commands/debug"
	flashcmd "github.com/tombee/embctl/internal/commands/flash"
	toolchaincmd "github.com/tombee/embctl/internal/commands/toolchain"
	versioncmd "github.com/tombee/embctl/internal/commands/version"
	watchcmd "github.com/tombee/embctl/internal/commands/watch"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Toolchain registry
	rootCmd.AddCommand(cli.InGroup(cli.GroupToolchains, toolchaincmd.NewCommand()))

	// Project commands
	rootCmd.AddCommand(cli.InGroup(cli.GroupProject, buildcmd.NewCommand()))
	rootCmd.AddCommand(cli.InGroup(cli.GroupProject, buildcmd.NewCleanCommand()))
	rootCmd.AddCommand(cli.InGroup(cli.GroupProject, watchcmd.NewCommand()))

	// Target commands
	rootCmd.AddCommand(cli.InGroup(cli.GroupTarget, flashcmd.NewCommand()))
	rootCmd.AddCommand(cli.InGroup(cli.GroupTarget, flashcmd.NewEraseCommand()))
	rootCmd.AddCommand(cli.InGroup(cli.GroupTarget, debugcmd.NewDebugCommand()))

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// Ctrl+C cancels the running build, flash or erase and stops its tools.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, err := rootCmd.ExecuteContextC(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(cmd, err)
	}
}
