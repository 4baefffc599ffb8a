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

// Package watch rebuilds a project when its source files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/tombee/embctl/internal/build"
	"github.com/tombee/embctl/internal/log"
	"github.com/tombee/embctl/internal/metrics"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/toolchain"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Defaults for Options.
const (
	DefaultDebounce    = 300 * time.Millisecond
	DefaultMinInterval = 2 * time.Second
)

// Event kinds.
const (
	Created  = "created"
	Modified = "modified"
	Deleted  = "deleted"
	Renamed  = "renamed"
)

var eventKinds = []struct {
	op   fsnotify.Op
	kind string
}{
	{fsnotify.Create, Created},
	{fsnotify.Write, Modified},
	{fsnotify.Remove, Deleted},
	{fsnotify.Rename, Renamed},
}

// Event is one observed source change.
type Event struct {
	Path string
	Kind string
	At   time.Time
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].At.Equal(events[j].At) {
			return events[i].Path < events[j].Path
		}
		return events[i].At.Before(events[j].At)
	})
}

// Builder runs builds. *build.Orchestrator implements it.
type Builder interface {
	Busy() bool
	Build(ctx context.Context, p project.Descriptor, tc toolchain.Descriptor, sink procrun.Sink) (*build.Result, error)
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period after the last change before a rebuild.
	Debounce time.Duration
	// MinInterval is the minimum time between rebuilds. Zero disables the limit.
	MinInterval time.Duration
	Exclude     []string
	// Sink receives build output.
	Sink procrun.Sink
	// OnResult is called after every rebuild that ran.
	OnResult func(changed []Event, res *build.Result)
}

// Watcher watches a project's source tree.
type Watcher struct {
	project project.Descriptor
	tc      toolchain.Descriptor
	builder Builder
	opts    Options
	logger  *slog.Logger

	fsw     *fsnotify.Watcher
	matcher *Matcher
	limiter *rate.Limiter
}

// New watches every directory below the project's source directory.
func New(p project.Descriptor, tc toolchain.Descriptor, builder Builder, opts Options, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExcludePatterns()
	}
	if opts.Sink == nil {
		opts.Sink = procrun.Discard
	}

	root := p.SourcePath()
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, embctlerrors.NewMissingFile(root)
	}
	matcher, err := NewMatcher(root, p.Processor, opts.Exclude)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		project: p,
		tc:      tc,
		builder: builder,
		opts:    opts,
		logger:  log.WithProject(log.WithComponent(logger, "watch"), p.Name, p.Processor.String()),
		fsw:     fsw,
		matcher: matcher,
		limiter: rate.NewLimiter(limit, 1),
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.logger.Warn("failed to watch directory", slog.String("path", path), log.Error(err))
		}
		return nil
	})
}

// Run delivers changes to the builder until ctx is done. It closes the
// watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	var deb *Debouncer
	deb = NewDebouncer(w.opts.Debounce, func(events []Event) { w.rebuild(ctx, deb, events) })
	defer func() {
		deb.Stop()
		_ = w.fsw.Close()
	}()

	w.logger.Info("watching sources", slog.String("root", w.project.SourcePath()))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, deb)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", log.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, deb *Debouncer) {
	kind := ""
	for _, k := range eventKinds {
		if ev.Has(k.op) {
			kind = k.kind
			break
		}
	}
	if kind == "" {
		return
	}

	if kind == Created {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", ev.Name), log.Error(err))
			}
			return
		}
	}
	if !w.matcher.Match(ev.Name) {
		log.Trace(w.logger, "change ignored", slog.String("path", ev.Name))
		return
	}
	w.logger.Debug("source changed", slog.String("path", ev.Name), slog.String("event", kind))
	deb.Add(Event{Path: ev.Name, Kind: kind, At: time.Now()})
}

// rebuild runs one build for a flushed batch. A batch held back by the rate
// limit or by a running build goes back to the debouncer and is retried.
func (w *Watcher) rebuild(ctx context.Context, deb *Debouncer, events []Event) {
	if ctx.Err() != nil {
		return
	}
	if w.builder.Busy() {
		w.deferBusy(deb, events)
		return
	}
	r := w.limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		metrics.RecordWatch(metrics.WatchRateLimited)
		w.logger.Info("rebuild deferred by rate limit",
			slog.Int("changes", len(events)),
			slog.Duration("delay", delay))
		deb.Retry(events, delay)
		return
	}

	w.opts.Sink.Append(fmt.Sprintf("\n%d source file(s) changed, rebuilding\n", len(events)))
	res, err := w.builder.Build(ctx, w.project, w.tc, w.opts.Sink)
	if err != nil {
		if embctlerrors.IsBusy(err) {
			w.deferBusy(deb, events)
			return
		}
		w.logger.Error("rebuild failed", log.Error(err))
		return
	}
	metrics.RecordWatch(metrics.WatchTriggered)
	if w.opts.OnResult != nil {
		w.opts.OnResult(events, res)
	}
}

func (w *Watcher) deferBusy(deb *Debouncer, events []Event) {
	metrics.RecordWatch(metrics.WatchBusy)
	w.logger.Info("rebuild deferred, build already running", slog.Int("changes", len(events)))
	deb.Retry(events, w.opts.Debounce)
}
