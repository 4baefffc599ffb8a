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

package portwait

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestWait_Ready(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan struct{}, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
			accepted <- struct{}{}
		}
	}()

	w := New(nil).WithInterval(50 * time.Millisecond)
	res, err := w.Wait(context.Background(), "127.0.0.1", l.Addr().(*net.TCPAddr).Port, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Ready, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Nil(t, res.LastErr)

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("probe connection never reached the listener")
	}
}

func TestWait_OpensLater(t *testing.T) {
	port := closedPort(t)
	go func() {
		time.Sleep(150 * time.Millisecond)
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return
		}
		time.Sleep(2 * time.Second)
		l.Close()
	}()

	w := New(nil).WithInterval(50 * time.Millisecond)
	res, err := w.Wait(context.Background(), "127.0.0.1", port, 3*time.Second)
	require.NoError(t, err)
	if res.Status != Ready {
		t.Skipf("port %d was taken by another process", port)
	}
	assert.Greater(t, res.Attempts, 1)
}

func TestWait_TimeoutBounds(t *testing.T) {
	port := closedPort(t)
	interval := 100 * time.Millisecond
	timeout := 350 * time.Millisecond

	w := New(nil).WithInterval(interval)
	start := time.Now()
	res, err := w.Wait(context.Background(), "127.0.0.1", port, timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, TimedOut, res.Status)
	assert.Error(t, res.LastErr)
	assert.GreaterOrEqual(t, elapsed, timeout)
	// scheduling slack on top of one interval
	assert.LessOrEqual(t, elapsed, timeout+interval+50*time.Millisecond)
}

func TestWait_ContextCancelled(t *testing.T) {
	port := closedPort(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := New(nil).WithInterval(50*time.Millisecond).Wait(ctx, "127.0.0.1", port, 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, TimedOut, res.Status)
	assert.Less(t, res.Elapsed, 5*time.Second)
}

func TestWait_ProbeClosesConnection(t *testing.T) {
	var dials, closes atomic.Int32
	w := New(nil).WithInterval(10 * time.Millisecond).WithDialer(func(ctx context.Context, network, address string) (net.Conn, error) {
		if dials.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		client, server := net.Pipe()
		go func() {
			buf := make([]byte, 1)
			_, _ = server.Read(buf)
			closes.Add(1)
		}()
		return client, nil
	})

	res, err := w.Wait(context.Background(), "localhost", 3333, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Ready, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "localhost:3333", res.Address)
	assert.Eventually(t, func() bool { return closes.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "timed out", TimedOut.String())
}
