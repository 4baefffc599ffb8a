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

package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitOperationFailed},
		{"busy", &embctlerrors.BusyError{Operation: "build"}, ExitBusy},
		{"wrapped busy", fmt.Errorf("start: %w", &embctlerrors.BusyError{Operation: "flash"}), ExitBusy},
		{"config", &embctlerrors.ConfigError{Reason: "bad"}, ExitInvalidConfig},
		{"validation", &embctlerrors.ValidationError{Field: "family", Message: "unknown"}, ExitInvalidConfig},
		{"precondition", embctlerrors.NewMissingTool("openocd", ""), ExitPrecondition},
		{"explicit", &ExitError{Code: ExitAdvisory, Message: "manual"}, ExitAdvisory},
		{"process", &embctlerrors.ProcessError{Path: "gcc", ExitCode: 1}, ExitOperationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestNewResultError(t *testing.T) {
	missing := embctlerrors.NewMissingFile("/p/build/blinky.bin")
	err := NewResultError(missing.Error(), missing)
	assert.Equal(t, ExitPrecondition, err.Code)
	assert.Equal(t, missing.Error(), err.Error())

	err = NewResultError("ST-Link programming failed", errors.New("exit status 3"))
	assert.Equal(t, ExitOperationFailed, err.Code)
	assert.Equal(t, "ST-Link programming failed: exit status 3", err.Error())

	err = NewResultError("build cancelled", nil)
	assert.Equal(t, ExitOperationFailed, err.Code)
	assert.Equal(t, "build cancelled", err.Error())
}

func TestNewAdvisoryError(t *testing.T) {
	err := NewAdvisoryError("use Code Composer Studio to debug this project")
	assert.Equal(t, ExitAdvisory, ExitCodeFor(err))
}

func TestPrintError(t *testing.T) {
	var b strings.Builder
	pe := embctlerrors.NewMissingTool("openocd", "install OpenOCD")
	PrintError(&b, NewResultError("flash failed", pe))
	assert.Contains(t, b.String(), "Error: flash failed")
	assert.Contains(t, b.String(), "Suggestion: install OpenOCD")

	b.Reset()
	PrintError(&b, errors.New("plain"))
	assert.Equal(t, "Error: plain\n", b.String())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"plain", errors.New("boom"), "operation_failed", false},
		{"busy", fmt.Errorf("start: %w", &embctlerrors.BusyError{Operation: "debug"}), "busy", true},
		{"precondition in result", NewResultError("flash failed", embctlerrors.NewMissingTool("openocd", "")), "missing_tool", false},
		{"timeout", &embctlerrors.TimeoutError{Operation: "debug server port"}, "timeout", true},
		{"not found", &embctlerrors.NotFoundError{Resource: "toolchain", ID: "x"}, "not_found", false},
		{"config", &embctlerrors.ConfigError{Reason: "bad"}, "invalid_config", false},
		{"process", &embctlerrors.ProcessError{Path: "gcc", ExitCode: 1}, "process_failed", false},
		{"advisory", NewAdvisoryError("program manually"), "advisory", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, retryable := ErrorCode(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.retryable, retryable)
		})
	}
}

func TestPrintJSONError(t *testing.T) {
	var b strings.Builder
	pe := embctlerrors.NewMissingTool("openocd", "install OpenOCD")
	assert.NoError(t, PrintJSONError(&b, "flash", NewResultError("flash failed", pe)))

	var resp JSONErrorResponse
	assert.NoError(t, json.Unmarshal([]byte(b.String()), &resp))
	assert.Equal(t, "flash", resp.Command)
	assert.False(t, resp.Success)
	assert.Equal(t, "missing_tool", resp.Error.Code)
	assert.Equal(t, "install OpenOCD", resp.Error.Suggestion)
	assert.Equal(t, ExitPrecondition, resp.Error.ExitCode)
	assert.False(t, resp.Error.Retryable)
}
