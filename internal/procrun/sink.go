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

package procrun

import (
	"io"
	"strings"
	"sync"
)

// Sink receives raw output text as it is produced.
// Implementations need not be safe for concurrent use; the runner
// serializes calls for a single process.
type Sink interface {
	Append(text string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(text string)

// Append implements Sink.
func (f SinkFunc) Append(text string) { f(text) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(string) {})

type multiSink []Sink

func (m multiSink) Append(text string) {
	for _, s := range m {
		s.Append(text)
	}
}

// Multi fans text out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type prefixSink struct {
	prefix string
	next   Sink
}

func (p prefixSink) Append(text string) {
	p.next.Append(p.prefix + text)
}

// Prefixed tags every chunk with prefix (e.g. "[server] ").
func Prefixed(prefix string, next Sink) Sink {
	if next == nil {
		return Discard
	}
	return prefixSink{prefix: prefix, next: next}
}

type lockedSink struct {
	mu   sync.Mutex
	next Sink
}

func (l *lockedSink) Append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.Append(text)
}

// Synchronized guards next with a mutex.
func Synchronized(next Sink) Sink {
	if next == nil {
		return Discard
	}
	if _, ok := next.(*lockedSink); ok {
		return next
	}
	return &lockedSink{next: next}
}

// Writer exposes a sink as an io.Writer. Each Write becomes one Append.
func Writer(s Sink) io.Writer {
	return sinkWriter{s}
}

type sinkWriter struct{ s Sink }

func (w sinkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.s.Append(string(p))
	}
	return len(p), nil
}

// FromWriter exposes an io.Writer (a log file, a terminal) as a sink.
// Write errors are dropped.
func FromWriter(w io.Writer) Sink {
	return SinkFunc(func(text string) {
		_, _ = io.WriteString(w, text)
	})
}

// Buffer is a concurrency-safe sink that keeps everything it receives.
type Buffer struct {
	mu sync.Mutex
	b  strings.Builder
}

// Append implements Sink.
func (b *Buffer) Append(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.b.WriteString(text)
}

// String returns the accumulated text.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}
