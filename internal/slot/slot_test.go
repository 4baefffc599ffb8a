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

package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/testing/fakebin"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

func TestSlot_AcquireRelease(t *testing.T) {
	s := New("build")
	assert.False(t, s.Busy())

	l, err := s.Acquire()
	require.NoError(t, err)
	assert.True(t, s.Busy())

	_, err = s.Acquire()
	require.Error(t, err)
	assert.True(t, embctlerrors.IsBusy(err))
	assert.EqualError(t, err, "build already running")

	l.Release()
	assert.False(t, s.Busy())

	// double release is harmless
	l.Release()

	l2, err := s.Acquire()
	require.NoError(t, err)
	l2.Release()
}

func TestSlot_ConcurrentAcquire(t *testing.T) {
	s := New("flash")
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.Acquire(); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestSlot_StaleReleaseAfterCancel(t *testing.T) {
	s := New("build")
	first, err := s.Acquire()
	require.NoError(t, err)

	assert.True(t, s.Cancel(time.Second))
	assert.True(t, first.Cancelled())
	assert.False(t, s.Busy())

	second, err := s.Acquire()
	require.NoError(t, err)

	first.Release()
	assert.True(t, s.Busy(), "stale release must not clear the new lease")
	assert.False(t, second.Cancelled())
	second.Release()
}

func TestSlot_CancelIdle(t *testing.T) {
	assert.False(t, New("debug").Cancel(time.Second))
}

func TestSlot_CancelTerminatesGroup(t *testing.T) {
	fakebin.SkipUnlessPOSIX(t)
	bin := fakebin.Write(t, t.TempDir(), "sleepy", fakebin.Sleeper)

	s := New("build")
	l, err := s.Acquire()
	require.NoError(t, err)

	runner := procrun.NewRunner(nil)
	var handles []*procrun.Handle
	for i := 0; i < 2; i++ {
		h, err := runner.Start(context.Background(), procrun.Command{Path: bin}, nil, procrun.WithGroup(l.Group()))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	assert.True(t, s.Cancel(2*time.Second))
	for _, h := range handles {
		assert.False(t, h.Running())
	}
}
