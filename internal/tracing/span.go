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
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an OpenTelemetry span with orchestrator helpers. A nil *Span
// is safe to use.
type Span struct {
	span trace.Span
}

// StartOperation opens a root span for a build, flash or debug start.
func StartOperation(ctx context.Context, operation, project, processor string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, "embctl."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("embctl.operation", operation),
			attribute.String("embctl.project", project),
			attribute.String("embctl.family", processor),
		),
	)
	return ctx, &Span{span: span}
}

// StartStage opens a child span for one pipeline stage.
func StartStage(ctx context.Context, stage string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, "stage: "+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("embctl.stage", stage)),
	)
	return ctx, &Span{span: span}
}

// SetAttributes adds key-value attributes to the span.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			kv = append(kv, attribute.String(k, val))
		case int:
			kv = append(kv, attribute.Int(k, val))
		case int64:
			kv = append(kv, attribute.Int64(k, val))
		case bool:
			kv = append(kv, attribute.Bool(k, val))
		case []string:
			kv = append(kv, attribute.StringSlice(k, val))
		default:
			kv = append(kv, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	s.span.SetAttributes(kv...)
}

// AddEvent records a timestamped event.
func (s *Span) AddEvent(name string) {
	if s == nil || s.span == nil {
		return
	}
	s.span.AddEvent(name)
}

// End closes the span, marking it failed when err is non-nil.
func (s *Span) End(err error) {
	if s == nil || s.span == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
