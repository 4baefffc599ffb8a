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
	"sync"
	"time"
)

// Debouncer collects changed paths and flushes them once no new change has
// arrived for the window duration.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	pending map[string]Event
	onFlush func([]Event)
	stopped bool
}

// NewDebouncer creates a debouncer calling onFlush with the accumulated
// events, one per path, in arrival order of their latest change.
func NewDebouncer(window time.Duration, onFlush func([]Event)) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]Event),
		onFlush: onFlush,
	}
}

// Add records ev and restarts the quiet window.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending[ev.Path] = ev
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	events := d.drain()
	d.mu.Unlock()

	if d.onFlush != nil && len(events) > 0 {
		d.onFlush(events)
	}
}

// drain empties the pending set. The caller holds mu.
func (d *Debouncer) drain() []Event {
	if len(d.pending) == 0 {
		return nil
	}
	events := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		events = append(events, ev)
	}
	sortEvents(events)
	d.pending = make(map[string]Event)
	d.timer = nil
	return events
}

// Retry puts events back into the pending set and flushes after delay, or
// after the window if that is longer. A pending event for the same path
// that is newer than the returned one is kept.
func (d *Debouncer) Retry(events []Event, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	for _, ev := range events {
		if cur, ok := d.pending[ev.Path]; ok && cur.At.After(ev.At) {
			continue
		}
		d.pending[ev.Path] = ev
	}
	if delay < d.window {
		delay = d.window
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.flush)
}

// Stop discards pending events and ignores later ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]Event)
}

// Pending returns the number of paths waiting for a flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
