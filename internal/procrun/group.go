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
	"sync"
	"time"
)

// Group tracks every live handle started on behalf of one operation so a
// cancel or failed start can terminate all of them, not just the latest.
type Group struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{handles: make(map[*Handle]struct{})}
}

func (g *Group) add(h *Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handles[h] = struct{}{}
}

func (g *Group) remove(h *Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.handles, h)
}

// Len returns the number of live handles.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// TerminateAll terminates every live handle concurrently and returns how
// many were signalled.
func (g *Group) TerminateAll(grace time.Duration) int {
	g.mu.Lock()
	handles := make([]*Handle, 0, len(g.handles))
	for h := range g.handles {
		handles = append(handles, h)
	}
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			_ = h.Terminate(grace)
		}(h)
	}
	wg.Wait()
	return len(handles)
}
