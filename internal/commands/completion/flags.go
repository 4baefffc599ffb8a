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

package completion

import (
	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/family"
)

// CompleteProcessors provides completion for processor family values.
func CompleteProcessors(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, p := range family.Processors() {
			out = append(out, p.String()+"\tbuilt with "+p.Toolchain().DisplayName())
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteToolchainFamilies provides completion for --family flag values.
func CompleteToolchainFamilies(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, t := range family.Toolchains() {
			out = append(out, t.String()+"\t"+t.DisplayName())
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteArtifacts completes image files for --artifact.
func CompleteArtifacts(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"elf", "bin", "hex", "out"}, cobra.ShellCompDirectiveFilterFileExt
}
