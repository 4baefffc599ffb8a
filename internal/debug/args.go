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

package debug

import (
	"fmt"
	"strconv"
)

// OpenOCDServerArgs runs OpenOCD as a GDB server for an ST-Link probe
// attached to an STM32F4.
func OpenOCDServerArgs(port int) []string {
	args := []string{"-f", "interface/stlink.cfg", "-f", "target/stm32f4x.cfg"}
	if port != DefaultPort {
		args = append(args, "-c", "gdb_port "+strconv.Itoa(port))
	}
	return args
}

// GDBArgs loads artifact through the server at host:port and halts the
// target after reset.
func GDBArgs(artifact, host string, port int) []string {
	return []string{
		artifact,
		"-ex", fmt.Sprintf("target remote %s:%d", host, port),
		"-ex", "load",
		"-ex", "monitor reset halt",
	}
}
