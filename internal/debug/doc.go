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

// Package debug runs on-target debug sessions.
//
// A Controller owns at most one session. For STM32 projects a session is
// an OpenOCD server plus an arm-none-eabi-gdb client attached to the
// server's control port; the client is started only once the port accepts
// connections. C67xx projects get an advisory session that names the
// vendor IDE instead of starting processes.
//
// Either process exiting ends the session and tears down the other one.
//
// # Example Usage
//
//	ctrl := debug.New(runner, locator, portwait.New(logger), debug.Options{}, logger)
//	sess, err := ctrl.Start(ctx, proj, tc, proj.Artifact(".elf"), sink)
//	if err != nil {
//		return err
//	}
//	defer ctrl.Stop()
//
//	shell := debug.NewShell(ctrl, sess, os.Stdin, os.Stdout)
//	err = shell.Run(ctx)
package debug
