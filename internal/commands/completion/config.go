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
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/embctl/internal/commands/shared"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/toolchain/store"
)

// completionTimeout bounds registry reads so the shell never hangs.
const completionTimeout = 500 * time.Millisecond

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// loadRegistered reads the persisted toolchains without probing them.
func loadRegistered(ctx context.Context) ([]toolchain.Descriptor, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, err
	}
	path, err := cfg.RegistryPath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Registry.Backend, path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Load(ctx)
}

// CompleteToolchainIDs completes registered toolchain ids, described by
// family and version.
func CompleteToolchainIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
		defer cancel()

		items, err := loadRegistered(ctx)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ids := make([]string, 0, len(items))
		for _, d := range items {
			ids = append(ids, d.ID+"\t"+d.Family.DisplayName()+" "+d.Version)
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteToolchainArg completes a single toolchain id positional argument.
func CompleteToolchainArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return CompleteToolchainIDs(cmd, args, toComplete)
}
