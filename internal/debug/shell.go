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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Shell forwards lines typed by the user to the attached debugger client.
// Lines starting with a dot are handled locally.
type Shell struct {
	ctrl   *Controller
	sess   *Session
	input  io.Reader
	output io.Writer
}

// NewShell creates a shell for sess. Nil input and output default to the
// process stdin and stdout.
func NewShell(ctrl *Controller, sess *Session, input io.Reader, output io.Writer) *Shell {
	if input == nil {
		input = os.Stdin
	}
	if output == nil {
		output = os.Stdout
	}
	return &Shell{ctrl: ctrl, sess: sess, input: input, output: output}
}

// Run reads commands until the user quits, input ends, the session ends
// or ctx is done. Quitting and end of input stop the session.
func (s *Shell) Run(ctx context.Context) error {
	if s.sess.Advisory {
		fmt.Fprintln(s.output, s.sess.Note)
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-s.sess.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintf(s.output, "Attached to %s. Type .help for shell commands.\n", s.sess.Address())
	for {
		select {
		case <-ctx.Done():
			s.ctrl.Stop()
			return ctx.Err()

		case <-s.sess.Done():
			fmt.Fprintln(s.output, "Debug session ended")
			return nil

		case sig := <-sigCh:
			if sig == syscall.SIGTERM {
				s.ctrl.Stop()
				return nil
			}
			fmt.Fprintln(s.output, "\nInterrupt received. Type .quit to end the session.")

		case err := <-readErr:
			s.ctrl.Stop()
			if err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			return nil

		case line := <-lines:
			done, err := s.handle(strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(s.output, "Error: %v\n", err)
			}
			if done {
				return nil
			}
		}
	}
}

// handle runs one line and reports whether the shell should exit.
func (s *Shell) handle(line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ".") {
		if line == "quit" || line == "q" {
			s.ctrl.Stop()
			return true, nil
		}
		return false, s.ctrl.SendCommand(line)
	}

	switch line {
	case ".quit", ".q", ".exit":
		s.ctrl.Stop()
		return true, nil
	case ".status", ".s":
		s.status()
	case ".help", ".h", ".?":
		s.showHelp()
	default:
		return false, fmt.Errorf("unknown shell command %q (try .help)", line)
	}
	return false, nil
}

func (s *Shell) status() {
	fmt.Fprintf(s.output, "Session:  %s\n", s.sess.ID)
	fmt.Fprintf(s.output, "State:    %s\n", s.ctrl.State())
	fmt.Fprintf(s.output, "Server:   %s (pid %d)\n", s.sess.Address(), s.sess.ServerPID())
	fmt.Fprintf(s.output, "Client:   pid %d\n", s.sess.ClientPID())
	fmt.Fprintf(s.output, "Artifact: %s\n", s.sess.Artifact)
}

func (s *Shell) showHelp() {
	help := `
Every line is sent to the debugger client (gdb) except:
  quit, q          End the session
  .quit, .q        End the session
  .status, .s      Show session processes and state
  .help, .h, .?    Show this help message

Press Ctrl+C to interrupt, then type .quit to end the session.
`
	fmt.Fprintln(s.output, help)
}
