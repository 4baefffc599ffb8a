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

package debug

import (
	"strconv"
	"sync"
	"time"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/procrun"
)

// State is a controller lifecycle state.
type State int

const (
	Idle State = iota
	ServerStarting
	ServerReady
	ClientAttached
	Terminated
	// Advisory holds a session that must be driven from an external IDE.
	Advisory
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ServerStarting:
		return "server-starting"
	case ServerReady:
		return "server-ready"
	case ClientAttached:
		return "client-attached"
	case Terminated:
		return "terminated"
	case Advisory:
		return "advisory"
	default:
		return "unknown"
	}
}

// Session is a started debug session.
type Session struct {
	ID        string
	Processor family.Processor
	Project   string
	Artifact  string
	StartedAt time.Time
	Host      string
	Port      int
	// Advisory is set when no processes were started and Note says how to
	// debug manually.
	Advisory bool
	Note     string

	server *procrun.Handle
	client *procrun.Handle

	stopOnce sync.Once
	stopped  chan struct{}
}

func (s *Session) markStopped() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Done is closed when the session stops or ends on its own.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// Address is the server control port address.
func (s *Session) Address() string {
	if s.Advisory {
		return ""
	}
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// Alive reports whether both session processes are running.
func (s *Session) Alive() bool {
	if s.Advisory || s.server == nil || s.client == nil {
		return false
	}
	return s.server.Running() && s.client.Running()
}

// ServerPID returns the debug server process id, or 0.
func (s *Session) ServerPID() int {
	if s.server == nil {
		return 0
	}
	return s.server.PID()
}

// ClientPID returns the debugger client process id, or 0.
func (s *Session) ClientPID() int {
	if s.client == nil {
		return 0
	}
	return s.client.PID()
}
