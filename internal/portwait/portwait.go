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

// Package portwait polls a TCP port until something accepts connections.
package portwait

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// DefaultInterval is the fixed delay between connection attempts.
const DefaultInterval = 500 * time.Millisecond

// Status is the outcome of a wait.
type Status int

const (
	// Ready means a probe connection succeeded.
	Ready Status = iota
	// TimedOut means the timeout elapsed without a successful probe.
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Result describes a finished wait.
type Result struct {
	Status   Status
	Address  string
	Attempts int
	Elapsed  time.Duration
	// LastErr is the error of the last failed probe.
	LastErr error
}

// DialFunc opens a probe connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Waiter probes a port at a fixed interval.
type Waiter struct {
	interval time.Duration
	dial     DialFunc
	logger   *slog.Logger
}

// New creates a waiter polling every DefaultInterval.
func New(logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.Default()
	}
	var d net.Dialer
	return &Waiter{
		interval: DefaultInterval,
		dial:     d.DialContext,
		logger:   logger.With(slog.String("component", "portwait")),
	}
}

// WithInterval sets the delay between attempts.
func (w *Waiter) WithInterval(d time.Duration) *Waiter {
	if d > 0 {
		w.interval = d
	}
	return w
}

// WithDialer replaces the connection function.
func (w *Waiter) WithDialer(dial DialFunc) *Waiter {
	if dial != nil {
		w.dial = dial
	}
	return w
}

// Interval returns the delay between attempts.
func (w *Waiter) Interval() time.Duration {
	return w.interval
}

// Check performs one probe. The connection is closed immediately.
func (w *Waiter) Check(ctx context.Context, address string) error {
	conn, err := w.dial(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Wait probes host:port until a connection succeeds or timeout elapses.
// A TimedOut result is returned no earlier than timeout and no later than
// timeout plus one interval. The error is non-nil only when ctx is done first.
func (w *Waiter) Wait(ctx context.Context, host string, port int, timeout time.Duration) (*Result, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	start := time.Now()
	deadline := start.Add(timeout)
	result := &Result{Address: address, Status: TimedOut}

	for {
		result.Attempts++

		probeTimeout := min(w.interval, time.Until(deadline))
		if probeTimeout <= 0 {
			probeTimeout = w.interval
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := w.Check(probeCtx, address)
		cancel()

		if err == nil {
			result.Status = Ready
			result.LastErr = nil
			result.Elapsed = time.Since(start)
			w.logger.Debug("port ready",
				slog.String("address", address),
				slog.Int("attempts", result.Attempts),
				slog.Int64("duration_ms", result.Elapsed.Milliseconds()))
			return result, nil
		}
		result.LastErr = err

		if ctx.Err() != nil {
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("waiting for %s: %w", address, ctx.Err())
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			result.Elapsed = time.Since(start)
			w.logger.Debug("port wait timed out",
				slog.String("address", address),
				slog.Int("attempts", result.Attempts),
				slog.Any("error", err))
			return result, nil
		}

		timer := time.NewTimer(min(w.interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("waiting for %s: %w", address, ctx.Err())
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			result.Elapsed = time.Since(start)
			return result, nil
		}
	}
}
