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

package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(Config{})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))

	// spans on the no-op provider are harmless
	_, span := StartOperation(context.Background(), "build", "blinky", "stm32")
	span.End(nil)
}

func TestSetup_ConsoleExport(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	p, err := Setup(Config{Enabled: true, Writer: &buf, ServiceVersion: "test"})
	require.NoError(t, err)

	ctx, op := StartOperation(context.Background(), "build", "blinky", "stm32")
	_, stage := StartStage(ctx, "compile")
	stage.SetAttributes(map[string]any{"embctl.file": "main.c", "embctl.count": 2})
	stage.End(errors.New("syntax error"))
	op.AddEvent("done")
	op.End(nil)

	require.NoError(t, p.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "embctl.build")
	assert.Contains(t, out, "stage: compile")
	assert.Contains(t, out, "syntax error")
	assert.Contains(t, out, "blinky")
}

func TestNilSpan(t *testing.T) {
	var s *Span
	assert.NotPanics(t, func() {
		s.SetAttributes(map[string]any{"k": "v"})
		s.AddEvent("x")
		s.End(errors.New("boom"))
	})
}
