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

package errors_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

func TestBusyError(t *testing.T) {
	err := &embctlerrors.BusyError{Operation: "build"}
	assert.Equal(t, "build already running", err.Error())
	assert.True(t, errors.Is(err, embctlerrors.ErrBusy))

	wrapped := fmt.Errorf("start: %w", err)
	assert.True(t, embctlerrors.IsBusy(wrapped))
	assert.False(t, embctlerrors.IsBusy(errors.New("other")))
}

func TestPreconditionError(t *testing.T) {
	tests := []struct {
		name    string
		err     *embctlerrors.PreconditionError
		wantMsg string
	}{
		{
			name:    "missing tool",
			err:     embctlerrors.NewMissingTool("openocd", "install OpenOCD"),
			wantMsg: "tool not found: openocd",
		},
		{
			name:    "missing file",
			err:     embctlerrors.NewMissingFile("/tmp/x.elf"),
			wantMsg: "file not found: /tmp/x.elf",
		},
		{
			name:    "no subject",
			err:     &embctlerrors.PreconditionError{Kind: embctlerrors.KindNoSession, Message: "no debug client attached"},
			wantMsg: "no debug client attached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.True(t, tt.err.IsUserVisible())
			assert.Equal(t, string(tt.err.Kind), tt.err.ErrorType())
		})
	}
}

func TestPreconditionLookup(t *testing.T) {
	err := embctlerrors.Wrap(embctlerrors.NewUnsupportedFamily("c67xx", "erase"), "erase")
	pe, ok := embctlerrors.Precondition(err)
	require.True(t, ok)
	assert.Equal(t, embctlerrors.KindUnsupportedFamily, pe.Kind)

	_, ok = embctlerrors.Precondition(errors.New("plain"))
	assert.False(t, ok)
}

func TestProcessError(t *testing.T) {
	t.Run("exit code", func(t *testing.T) {
		err := &embctlerrors.ProcessError{Path: "/bin/false", ExitCode: 2}
		assert.Equal(t, "process exited with code 2", err.Error())
		assert.True(t, err.Spawned())
		assert.Equal(t, 2, embctlerrors.ExitCode(fmt.Errorf("link: %w", err)))
	})

	t.Run("spawn failure", func(t *testing.T) {
		err := &embctlerrors.ProcessError{Path: "/nope", ExitCode: -1, Cause: os.ErrNotExist}
		assert.False(t, err.Spawned())
		assert.Contains(t, err.Error(), "failed to execute /nope")
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("no process error", func(t *testing.T) {
		assert.Equal(t, -1, embctlerrors.ExitCode(errors.New("x")))
	})
}

func TestWrap(t *testing.T) {
	assert.Nil(t, embctlerrors.Wrap(nil, "ctx"))
	assert.Nil(t, embctlerrors.Wrapf(nil, "ctx %d", 1))

	root := errors.New("root cause")
	wrapped := embctlerrors.Wrapf(root, "loading %s", "toolchains.json")
	assert.Equal(t, "loading toolchains.json: root cause", wrapped.Error())
	assert.True(t, errors.Is(wrapped, root))
}

func TestConfigAndTimeoutErrors(t *testing.T) {
	cause := errors.New("bad yaml")
	cfgErr := &embctlerrors.ConfigError{Key: "registry.backend", Reason: "unknown backend", Cause: cause}
	assert.Equal(t, "config error at registry.backend: unknown backend", cfgErr.Error())
	assert.True(t, errors.Is(cfgErr, cause))

	assert.Equal(t, "toolchain not found: abc", (&embctlerrors.NotFoundError{Resource: "toolchain", ID: "abc"}).Error())
	assert.Equal(t, "toolchain already exists: arm-gcc:/opt/gcc", (&embctlerrors.DuplicateError{Resource: "toolchain", Key: "arm-gcc:/opt/gcc"}).Error())
	assert.Equal(t, "validation failed on compiler: missing", (&embctlerrors.ValidationError{Field: "compiler", Message: "missing"}).Error())
}

func TestProcessErrorKilled(t *testing.T) {
	err := &embctlerrors.ProcessError{Path: "openocd", ExitCode: -1, Killed: true}
	assert.True(t, err.Spawned())
	assert.Equal(t, "process terminated by signal", err.Error())
}

func TestErrorClassifier(t *testing.T) {
	tests := []struct {
		err       error
		errType   string
		retryable bool
	}{
		{&embctlerrors.BusyError{Operation: "flash"}, "busy", true},
		{embctlerrors.NewMissingFile("/p/build/blinky.bin"), "missing_file", false},
		{&embctlerrors.TimeoutError{Operation: "version probe"}, "timeout", true},
		{&embctlerrors.ValidationError{Message: "bad"}, "invalid_input", false},
		{&embctlerrors.DuplicateError{Resource: "toolchain"}, "duplicate", false},
	}
	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			var c embctlerrors.ErrorClassifier
			require.True(t, errors.As(fmt.Errorf("wrapped: %w", tt.err), &c))
			assert.Equal(t, tt.errType, c.ErrorType())
			assert.Equal(t, tt.retryable, c.IsRetryable())
		})
	}
}
