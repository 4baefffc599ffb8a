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

package flash

// STLinkProgramArgs programs, verifies and resets over SWD.
func STLinkProgramArgs(artifact string) []string {
	return []string{"-c", "SWD", "-P", artifact, FlashBase, "-V", "after_programming", "-Rst"}
}

// STLinkEraseArgs mass-erases over SWD.
func STLinkEraseArgs() []string {
	return []string{"-c", "SWD", "-ME"}
}

// OpenOCDProgramArgs drives an ST-Link probe attached to an STM32F4 through
// connect, halt, erase-write, reset and shutdown.
func OpenOCDProgramArgs(artifact string) []string {
	return []string{
		"-f", "interface/stlink.cfg",
		"-f", "target/stm32f4x.cfg",
		"-c", "init",
		"-c", "reset halt",
		"-c", "flash write_image erase " + artifact + " " + FlashBase,
		"-c", "reset run",
		"-c", "shutdown",
	}
}

// UniFlashProgramArgs programs artifact through the emulator described by ccxml.
func UniFlashProgramArgs(ccxml, artifact string) []string {
	return []string{"-ccxml", ccxml, "-program", artifact}
}
