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

package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/commands/shared"
)

// Command groups shown by 'embctl help --json'.
const (
	GroupToolchains = "toolchains"
	GroupProject    = "project"
	GroupTarget     = "target"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for embctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embctl",
		Short: "embctl - embedded toolchain session control",
		Long: `embctl drives the compiler, programmer and debugger toolchains for STM32
and TI C67xx firmware projects. It finds installed toolchains, builds a
project, programs the target and runs gdb against an OpenOCD server.

Run 'embctl toolchain detect' to register installed toolchains.
Run 'embctl build' in a directory containing project.yaml.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config, project := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/embctl/config.yaml)")
	cmd.PersistentFlags().StringVarP(project, "project", "C", ".", "Project directory containing project.yaml")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

// InGroup annotates cmd with a help group.
func InGroup(group string, cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations["group"] = group
	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError reports err from the executed cmd and exits with its code.
func HandleExitError(cmd *cobra.Command, err error) {
	shared.HandleExitError(CommandName(cmd), err)
}

// CommandName is the path of cmd below the root, e.g. "toolchain add".
func CommandName(cmd *cobra.Command) string {
	if cmd == nil || !cmd.HasParent() {
		return ""
	}
	return strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
}
