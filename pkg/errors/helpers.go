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

package errors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := store.Save(ctx, list); err != nil {
//	    return errors.Wrap(err, "saving registry")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsBusy reports whether err is an occupancy conflict.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Precondition returns the PreconditionError in err's tree, if any.
func Precondition(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ExitCode extracts the exit code of a failed process from err's tree.
// It returns -1 when err carries no ProcessError or the process never started.
func ExitCode(err error) int {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.ExitCode
	}
	return -1
}

// NewMissingTool builds a precondition error for an undiscoverable executable.
func NewMissingTool(tool, hint string) *PreconditionError {
	return &PreconditionError{
		Kind:    KindMissingTool,
		Subject: tool,
		Message: "tool not found",
		Hint:    hint,
	}
}

// NewMissingFile builds a precondition error for an absent input file.
func NewMissingFile(path string) *PreconditionError {
	return &PreconditionError{
		Kind:    KindMissingFile,
		Subject: path,
		Message: "file not found",
	}
}

// NewUnsupportedFamily builds a precondition error for a family without a pipeline.
func NewUnsupportedFamily(family, operation string) *PreconditionError {
	return &PreconditionError{
		Kind:    KindUnsupportedFamily,
		Subject: family,
		Message: fmt.Sprintf("%s is not supported for processor family", operation),
	}
}
