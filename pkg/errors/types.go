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
	"time"
)

// ErrBusy is matched by every BusyError via errors.Is.
var ErrBusy = errors.New("operation already running")

// BusyError reports that an operation slot is already occupied.
// Occupancy conflicts are rejected immediately and never queued.
type BusyError struct {
	// Operation names the slot (e.g., "build", "flash", "debug")
	Operation string
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	return fmt.Sprintf("%s already running", e.Operation)
}

// Is reports whether target is ErrBusy.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// ErrorType implements ErrorClassifier.
func (e *BusyError) ErrorType() string { return "busy" }

// IsRetryable implements ErrorClassifier.
func (e *BusyError) IsRetryable() bool { return true }

// PreconditionKind classifies precondition failures.
type PreconditionKind string

const (
	// KindMissingFile means an input file (artifact, source) does not exist.
	KindMissingFile PreconditionKind = "missing_file"
	// KindMissingTool means no external executable could be found for a step.
	KindMissingTool PreconditionKind = "missing_tool"
	// KindUnsupportedFamily means the operation has no pipeline for the family.
	KindUnsupportedFamily PreconditionKind = "unsupported_family"
	// KindNoSources means source enumeration matched nothing.
	KindNoSources PreconditionKind = "no_sources"
	// KindNoSession means a debug operation needs an attached client.
	KindNoSession PreconditionKind = "no_session"
)

// PreconditionError is reported before any subprocess is spawned.
type PreconditionError struct {
	Kind PreconditionKind

	// Subject is the file, tool or family the check was about
	Subject string

	Message string

	// Hint provides actionable guidance for fixing the problem
	Hint string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Subject)
	}
	return e.Message
}

// IsUserVisible implements UserVisibleError.
func (e *PreconditionError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *PreconditionError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *PreconditionError) Suggestion() string { return e.Hint }

// ErrorType implements ErrorClassifier.
func (e *PreconditionError) ErrorType() string { return string(e.Kind) }

// IsRetryable implements ErrorClassifier.
func (e *PreconditionError) IsRetryable() bool { return false }

// ProcessError represents a failed external process.
// A spawn failure carries ExitCode -1 and the OS error as Cause.
type ProcessError struct {
	// Path is the executable that was run
	Path string

	// ExitCode is the process exit status, or -1 when it never ran
	// or was killed by a signal
	ExitCode int

	// Killed is set when the process was terminated by a signal
	Killed bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	switch {
	case e.Killed:
		return "process terminated by signal"
	case e.ExitCode < 0:
		return fmt.Sprintf("failed to execute %s: %v", e.Path, e.Cause)
	default:
		return fmt.Sprintf("process exited with code %d", e.ExitCode)
	}
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// Spawned reports whether the process actually started.
func (e *ProcessError) Spawned() bool {
	return e.Killed || e.ExitCode >= 0
}

// ErrorType implements ErrorClassifier.
func (e *ProcessError) ErrorType() string { return "process_failed" }

// IsRetryable implements ErrorClassifier.
func (e *ProcessError) IsRetryable() bool { return false }

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "invalid_input" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// DuplicateError is returned when an insert collides with an existing record.
type DuplicateError struct {
	Resource string
	Key      string
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

func (e *DuplicateError) ErrorType() string { return "duplicate" }
func (e *DuplicateError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "toolchain", "session")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) ErrorType() string { return "not_found" }
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "registry.backend")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "invalid_config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "version probe", "debug server port")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }
