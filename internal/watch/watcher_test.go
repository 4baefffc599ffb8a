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

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/embctl/internal/build"
	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/toolchain"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

type fakeBuilder struct {
	mu       sync.Mutex
	calls    int
	// rejected is the number of leading Build calls answered with busy
	rejected int
}

func (f *fakeBuilder) Busy() bool { return false }

func (f *fakeBuilder) Build(_ context.Context, p project.Descriptor, _ toolchain.Descriptor, _ procrun.Sink) (*build.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.rejected {
		return nil, &embctlerrors.BusyError{Operation: build.Operation}
	}
	return &build.Result{Project: p.Name, Success: true}, nil
}

func (f *fakeBuilder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newProject(t *testing.T) project.Descriptor {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "drivers"), 0o755))
	return project.Descriptor{Name: "blinky", Root: root, Processor: family.STM32}
}

func write(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("int x;\n"), 0o644))
}

func run(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMatcher(t *testing.T) {
	root := filepath.Join("proj", "src")
	m, err := NewMatcher(root, family.C67xx, DefaultExcludePatterns())
	require.NoError(t, err)

	assert.True(t, m.Match(filepath.Join(root, "main.c")))
	assert.True(t, m.Match(filepath.Join(root, "dsp", "FIR.CPP")))
	assert.False(t, m.Match(filepath.Join(root, "main.h")))
	assert.False(t, m.Match(filepath.Join(root, ".main.c.swp")))
	assert.False(t, m.Match(filepath.Join(root, ".vscode", "x.c")))
	assert.False(t, m.Match(filepath.Join("proj", "other", "main.c")))

	_, err = NewMatcher(root, family.ProcessorUnknown, nil)
	assert.Error(t, err)
	_, err = NewMatcher(root, family.STM32, []string{"[unclosed"})
	assert.Error(t, err)
}

func TestDebouncer(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]Event
	d := NewDebouncer(50*time.Millisecond, func(events []Event) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, events)
	})

	now := time.Now()
	d.Add(Event{Path: "a.c", Kind: Modified, At: now})
	d.Add(Event{Path: "b.c", Kind: Created, At: now.Add(time.Millisecond)})
	d.Add(Event{Path: "a.c", Kind: Modified, At: now.Add(2 * time.Millisecond)})
	assert.Equal(t, 2, d.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 1
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"b.c", "a.c"}, []string{flushed[0][0].Path, flushed[0][1].Path})
	mu.Unlock()
	assert.Zero(t, d.Pending())

	d.Stop()
	d.Add(Event{Path: "c.c"})
	assert.Zero(t, d.Pending())
}

func TestWatcher_RebuildsOnSourceChange(t *testing.T) {
	p := newProject(t)
	fb := &fakeBuilder{}
	results := make(chan []Event, 4)
	w, err := New(p, toolchain.Descriptor{}, fb, Options{
		Debounce: 50 * time.Millisecond,
		OnResult: func(changed []Event, res *build.Result) {
			assert.True(t, res.Success)
			results <- changed
		},
	}, nil)
	require.NoError(t, err)
	run(t, w)

	write(t, filepath.Join(p.SourcePath(), "notes.txt"))
	write(t, filepath.Join(p.SourcePath(), "drivers", "gpio.c"))

	select {
	case changed := <-results:
		require.NotEmpty(t, changed)
		for _, ev := range changed {
			assert.Equal(t, ".c", filepath.Ext(ev.Path))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after source change")
	}
	assert.Equal(t, 1, fb.count())
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	p := newProject(t)
	fb := &fakeBuilder{}
	w, err := New(p, toolchain.Descriptor{}, fb, Options{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	run(t, w)

	dir := filepath.Join(p.SourcePath(), "hal")
	require.NoError(t, os.Mkdir(dir, 0o755))
	// The directory is added asynchronously; keep touching until seen.
	require.Eventually(t, func() bool {
		write(t, filepath.Join(dir, "clock.c"))
		return fb.count() > 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestWatcher_RateLimitDefersRebuild(t *testing.T) {
	p := newProject(t)
	fb := &fakeBuilder{}
	results := make(chan []Event, 4)
	w, err := New(p, toolchain.Descriptor{}, fb, Options{
		Debounce:    20 * time.Millisecond,
		MinInterval: 300 * time.Millisecond,
		OnResult:    func(changed []Event, _ *build.Result) { results <- changed },
	}, nil)
	require.NoError(t, err)
	run(t, w)

	src := filepath.Join(p.SourcePath(), "main.c")
	write(t, src)
	select {
	case <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial rebuild")
	}
	first := time.Now()

	write(t, src)
	select {
	case changed := <-results:
		require.NotEmpty(t, changed)
		assert.Equal(t, src, changed[len(changed)-1].Path)
		assert.GreaterOrEqual(t, time.Since(first), 200*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("change held back by the rate limit was never rebuilt")
	}

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 2, fb.count())
	assert.Empty(t, results)
}

func TestWatcher_BusyRetried(t *testing.T) {
	p := newProject(t)
	fb := &fakeBuilder{rejected: 1}
	var results atomic.Int32
	w, err := New(p, toolchain.Descriptor{}, fb, Options{
		Debounce: 20 * time.Millisecond,
		OnResult: func([]Event, *build.Result) { results.Add(1) },
	}, nil)
	require.NoError(t, err)
	run(t, w)

	write(t, filepath.Join(p.SourcePath(), "main.c"))
	require.Eventually(t, func() bool { return results.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, fb.count())
	assert.Equal(t, int32(1), results.Load())
}

func TestDebouncer_Retry(t *testing.T) {
	flushed := make(chan []Event, 2)
	d := NewDebouncer(10*time.Millisecond, func(events []Event) { flushed <- events })
	defer d.Stop()

	now := time.Now()
	d.Add(Event{Path: "a.c", Kind: Modified, At: now.Add(time.Second)})
	d.Retry([]Event{{Path: "a.c", Kind: Created, At: now}, {Path: "b.c", Kind: Modified, At: now}}, 100*time.Millisecond)
	assert.Equal(t, 2, d.Pending())

	start := time.Now()
	select {
	case events := <-flushed:
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
		require.Len(t, events, 2)
		assert.Equal(t, "b.c", events[0].Path)
		assert.Equal(t, Modified, events[1].Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("retried events never flushed")
	}
}

func TestNew_MissingSourceDir(t *testing.T) {
	p := project.Descriptor{Name: "x", Root: t.TempDir(), Processor: family.STM32}
	_, err := New(p, toolchain.Descriptor{}, &fakeBuilder{}, Options{}, nil)
	pe, ok := embctlerrors.Precondition(err)
	require.True(t, ok)
	assert.Equal(t, embctlerrors.KindMissingFile, pe.Kind)
}
