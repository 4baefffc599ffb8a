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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitOperationFailed = 1
	ExitInvalidConfig   = 2
	ExitPrecondition    = 3
	ExitBusy            = 4
	// ExitAdvisory means the operation needs manual follow-up.
	ExitAdvisory = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewOperationError creates an error for a failed build, flash or debug step
func NewOperationError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitOperationFailed, Message: msg, Cause: cause}
}

// NewResultError creates the error for an unsuccessful operation result.
// The exit code follows the underlying cause, so a missing tool or file
// still exits with ExitPrecondition.
func NewResultError(msg string, cause error) *ExitError {
	code := ExitOperationFailed
	if cause != nil {
		code = ExitCodeFor(cause)
	}
	return &ExitError{Code: code, Message: msg, Cause: cause}
}

// NewAdvisoryError creates an error for results that need manual follow-up
func NewAdvisoryError(msg string) *ExitError {
	return &ExitError{Code: ExitAdvisory, Message: msg}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var (
		cfgErr *embctlerrors.ConfigError
		valErr *embctlerrors.ValidationError
	)
	switch {
	case embctlerrors.IsBusy(err):
		return ExitBusy
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return ExitInvalidConfig
	}
	if _, ok := embctlerrors.Precondition(err); ok {
		return ExitPrecondition
	}
	return ExitOperationFailed
}

// HandleExitError prints err with any suggestion and exits with its code.
// Under --json the error is written as a JSONErrorResponse for command.
func HandleExitError(command string, err error) {
	if err == nil {
		return
	}
	if GetJSON() {
		_ = PrintJSONError(os.Stderr, command, err)
	} else {
		PrintError(os.Stderr, err)
	}
	os.Exit(ExitCodeFor(err))
}

// ErrorCode classifies err for machine-readable output.
func ErrorCode(err error) (code string, retryable bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitAdvisory {
		return "advisory", false
	}
	var classified embctlerrors.ErrorClassifier
	if errors.As(err, &classified) {
		return classified.ErrorType(), classified.IsRetryable()
	}
	return "operation_failed", false
}

// PrintJSONError writes err as a JSONErrorResponse.
func PrintJSONError(w io.Writer, command string, err error) error {
	code, retryable := ErrorCode(err)
	resp := JSONErrorResponse{
		JSONResponse: NewJSONResponse(command, false),
		Error: JSONError{
			Code:       code,
			Message:    err.Error(),
			Suggestion: suggestion(err),
			Retryable:  retryable,
			ExitCode:   ExitCodeFor(err),
		},
	}
	return EmitJSON(w, resp)
}

// PrintError writes err and, when the error chain carries one, its
// suggestion.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	if s := suggestion(err); s != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", s)
	}
}

// suggestion returns the suggestion of the first UserVisibleError in the
// chain, or "".
func suggestion(err error) string {
	var userErr embctlerrors.UserVisibleError
	if errors.As(err, &userErr) && userErr.IsUserVisible() {
		return userErr.Suggestion()
	}
	return ""
}
