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

// Package slot implements the single-operation occupancy guard shared by the
// build, flash and debug orchestrators.
package slot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/embctl/internal/procrun"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Slot admits at most one lease at a time.
type Slot struct {
	operation string

	mu      sync.Mutex
	current *Lease
	seq     uint64
}

// New creates an empty slot. operation names the guarded work in busy errors.
func New(operation string) *Slot {
	return &Slot{operation: operation}
}

// Lease is the right to run one operation. Every process started for the
// operation is registered in its group.
type Lease struct {
	slot      *Slot
	id        uint64
	group     *procrun.Group
	acquired  time.Time
	cancelled atomic.Bool
}

// Acquire occupies the slot or fails immediately with a *errors.BusyError.
func (s *Slot) Acquire() (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, &embctlerrors.BusyError{Operation: s.operation}
	}
	s.seq++
	l := &Lease{slot: s, id: s.seq, group: procrun.NewGroup(), acquired: time.Now()}
	s.current = l
	return l, nil
}

// Busy reports whether a lease is held.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Operation returns the guarded operation name.
func (s *Slot) Operation() string {
	return s.operation
}

// Cancel terminates every process of the current lease and clears the slot.
// It reports whether a lease was held.
func (s *Slot) Cancel(grace time.Duration) bool {
	s.mu.Lock()
	l := s.current
	s.current = nil
	s.mu.Unlock()

	if l == nil {
		return false
	}
	l.cancelled.Store(true)
	l.group.TerminateAll(grace)
	return true
}

// Release frees the slot if this lease still holds it. A lease cleared by
// Cancel does not disturb a newer occupant.
func (l *Lease) Release() {
	l.slot.mu.Lock()
	defer l.slot.mu.Unlock()
	if l.slot.current == l {
		l.slot.current = nil
	}
}

// Group returns the process group owned by the lease.
func (l *Lease) Group() *procrun.Group {
	return l.group
}

// Cancelled reports whether Cancel ended this lease.
func (l *Lease) Cancelled() bool {
	return l.cancelled.Load()
}

// Held returns how long the lease has been held.
func (l *Lease) Held() time.Duration {
	return time.Since(l.acquired)
}
