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

// UserVisibleError is an error the CLI prints with a suggestion line.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the message is meant for end users.
	IsUserVisible() bool

	UserMessage() string

	// Suggestion is a next step for the user, or "".
	Suggestion() string
}

// ErrorClassifier is implemented by errors that carry a stable category
// for machine-readable output.
type ErrorClassifier interface {
	error

	// ErrorType is a snake_case category such as "busy" or "missing_tool".
	ErrorType() string

	// IsRetryable reports whether the same request may succeed unchanged
	// later, as when an occupied slot frees up.
	IsRetryable() bool
}

var (
	_ ErrorClassifier = (*BusyError)(nil)
	_ ErrorClassifier = (*PreconditionError)(nil)
	_ ErrorClassifier = (*ProcessError)(nil)
	_ ErrorClassifier = (*ValidationError)(nil)
	_ ErrorClassifier = (*DuplicateError)(nil)
	_ ErrorClassifier = (*NotFoundError)(nil)
	_ ErrorClassifier = (*ConfigError)(nil)
	_ ErrorClassifier = (*TimeoutError)(nil)
)
