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

// Package fakebin writes small POSIX shell scripts that stand in for vendor
// toolchain executables in tests.
package fakebin

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// SkipUnlessPOSIX skips tests that rely on /bin/sh scripts.
func SkipUnlessPOSIX(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables are POSIX shell scripts")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

// Write creates an executable script at dir/name with the given body and
// returns its path. Parent directories are created.
func Write(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("fakebin: mkdir: %v", err)
	}
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("fakebin: write %s: %v", path, err)
	}
	return path
}

// WriteFile creates a plain, non-executable file with content.
func WriteFile(t testing.TB, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("fakebin: mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("fakebin: write %s: %v", path, err)
	}
	return path
}

// Version prints a gcc-style version banner and exits 0.
const Version = `echo "arm-none-eabi-gcc (GNU Arm Embedded Toolchain 10.3-2021.10) 10.3.1 20210824 (release)"`

// Compiler behaves like a compiler driver: it records its arguments to
// $0.log, fails for any argument containing "fail_compile", and touches the file
// named after -o (or -fo=). It answers --version.
const Compiler = `
echo "$@" >> "$0.log"
out=""
prev=""
for a in "$@"; do
  case "$a" in
    --version) echo "fake compiler 1.2.3"; exit 0 ;;
    *fail_compile*) echo "error: $a: syntax error" >&2; exit 1 ;;
    -fo=*) out="${a#-fo=}" ;;
  esac
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
if [ -n "$out" ]; then : > "$out"; fi
exit 0`

// Recorder logs its arguments to $0.log and exits 0.
const Recorder = `echo "$@" >> "$0.log"
echo "ok"
exit 0`

// Failing logs its arguments and exits 3.
const Failing = `echo "$@" >> "$0.log"
echo "target not connected" >&2
exit 3`

// Sleeper runs until killed.
const Sleeper = `echo "listening"
exec sleep 30`

// Echoer reads lines from stdin and echoes them back prefixed with "got:".
const Echoer = `echo "$@" >> "$0.log"
while read line; do echo "got:$line"; done`
