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

package log

import (
	"context"
	"log/slog"
	"time"
)

// Operation describes an orchestrator call for logging purposes.
type Operation struct {
	// Name is the operation kind (e.g., "build", "flash", "erase", "debug").
	Name    string
	Project string
	Family  string
	// Attrs are extra fields logged with both the start and the end line.
	Attrs []slog.Attr
}

// Outcome describes how an operation ended.
type Outcome struct {
	Success bool
	// Advisory marks a result that needs manual follow-up rather than a failure.
	Advisory bool
	Error    string
	Attrs    []slog.Attr
}

// Tracker logs the start and end of one operation.
type Tracker struct {
	logger *slog.Logger
	op     Operation
	start  time.Time
}

// Begin logs the start of op and returns a tracker for its end.
func Begin(logger *slog.Logger, op Operation) *Tracker {
	logger = logger.With(
		slog.String("operation", op.Name),
		slog.String(ProjectKey, op.Project),
		slog.String(FamilyKey, op.Family),
	)
	attrs := append([]slog.Attr{slog.String("event", "operation_start")}, op.Attrs...)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "operation started", attrs...)
	return &Tracker{logger: logger, op: op, start: time.Now()}
}

// Logger returns the operation-scoped logger.
func (t *Tracker) Logger() *slog.Logger {
	return t.logger
}

// Elapsed returns the time since Begin.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Finish logs the outcome. Failures are logged at warn level and advisory
// results at info.
func (t *Tracker) Finish(out Outcome) {
	attrs := []slog.Attr{
		slog.String("event", "operation_end"),
		slog.Bool("success", out.Success),
		Duration(t.Elapsed().Milliseconds()),
	}
	if out.Advisory {
		attrs = append(attrs, slog.Bool("advisory", true))
	}
	if out.Error != "" {
		attrs = append(attrs, slog.String("error", out.Error))
	}
	attrs = append(attrs, t.op.Attrs...)
	attrs = append(attrs, out.Attrs...)

	level := slog.LevelInfo
	message := "operation completed"
	if !out.Success && !out.Advisory {
		level = slog.LevelWarn
		message = "operation failed"
	}
	t.logger.LogAttrs(context.Background(), level, message, attrs...)
}
