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

/*
Package cli provides the root command and shared configuration for the embctl CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

The CLI is organized as:

	embctl
	├── toolchain     Detect, register and validate toolchains
	├── build         Compile and link the project
	├── clean         Remove build outputs
	├── watch         Rebuild when sources change
	├── flash         Program the target
	├── erase         Mass-erase the target
	├── debug         Start an on-target debug session
	├── version       Show version
	└── help          Show help

# Global Flags

	-v, --verbose       Debug logging
	-q, --quiet         Only errors
	    --json          Machine-readable output
	    --config        Config file (default: ~/.config/embctl/config.yaml)
	-C, --project       Project directory (default: .)

# Exit Codes

	0  success
	1  the operation ran and failed
	2  invalid configuration or input
	3  a required tool, file or toolchain is missing
	4  another operation of the same kind is running
	5  manual follow-up needed (DSP flash or debug)
*/
package cli
