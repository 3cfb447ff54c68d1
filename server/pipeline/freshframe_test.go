package pipeline

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/securewatch/sentinel/server/source"
	"github.com/stretchr/testify/require"
)

// fakeStream produces numbered frames at a fixed cadence until closed,
// optionally failing every read.
type fakeStream struct {
	number   atomic.Int64
	failing  atomic.Bool
	closed   atomic.Bool
	interval time.Duration
}

func (f *fakeStream) Open() error {
	return nil
}

func (f *fakeStream) Read() (*source.Frame, error) {
	time.Sleep(f.interval)
	if f.closed.Load() {
		return nil, fmt.Errorf("Stream closed")
	}
	if f.failing.Load() {
		return nil, fmt.Errorf("Simulated read failure")
	}
	n := f.number.Add(1)
	return &source.Frame{
		Image:     cimg.NewImage(8, 8, cimg.PixelFormatRGB),
		Number:    n,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeStream) Close() {
	f.closed.Store(true)
}

func TestFreshFrameBuffer(t *testing.T) {
	src := &fakeStream{interval: time.Millisecond}
	buf := NewFreshFrameBuffer(logs.NewTestingLog(t), src)

	// Before anything is read, there is nothing to hand out
	require.Eventually(t, func() bool {
		return buf.FramesRead() > 0
	}, 5*time.Second, time.Millisecond)

	frame, ok := buf.LatestIfDifferent(0)
	require.True(t, ok)
	require.NotNil(t, frame)

	// Asking again with the same frame number yields either nothing, or a
	// strictly newer frame
	last := frame.Number
	if newer, ok := buf.LatestIfDifferent(last); ok {
		require.Greater(t, newer.Number, last)
	}

	require.Eventually(t, func() bool {
		f, ok := buf.LatestIfDifferent(last)
		return ok && f.Number > last
	}, 5*time.Second, time.Millisecond)

	buf.Stop()
}

func TestFreshFrameBufferFailureCounting(t *testing.T) {
	src := &fakeStream{interval: time.Millisecond}
	buf := NewFreshFrameBuffer(logs.NewTestingLog(t), src)

	require.Eventually(t, func() bool {
		return buf.FramesRead() > 0
	}, 5*time.Second, time.Millisecond)
	require.EqualValues(t, 0, buf.ConsecutiveFailures())

	src.failing.Store(true)
	require.Eventually(t, func() bool {
		return buf.ConsecutiveFailures() >= 3
	}, 5*time.Second, time.Millisecond)

	// One successful read resets the failure count
	src.failing.Store(false)
	require.Eventually(t, func() bool {
		return buf.ConsecutiveFailures() == 0
	}, 5*time.Second, time.Millisecond)

	buf.Stop()
}

func TestFreshFrameBufferNoTornReads(t *testing.T) {
	src := &fakeStream{}
	buf := NewFreshFrameBuffer(logs.NewTestingLog(t), src)

	// Hammer the consumer side while the producer overwrites the slot as
	// fast as it can. Every frame handed out must be internally consistent,
	// and frame numbers must be strictly increasing per consumer.
	done := make(chan bool)
	for g := 0; g < 4; g++ {
		go func() {
			last := int64(0)
			for i := 0; i < 2000; i++ {
				frame, ok := buf.LatestIfDifferent(last)
				if !ok {
					continue
				}
				if frame.Image == nil || frame.Number <= last {
					t.Error("Torn or stale frame")
					break
				}
				last = frame.Number
			}
			done <- true
		}()
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	buf.Stop()
}

func TestFreshFrameBufferEmpty(t *testing.T) {
	src := &fakeStream{interval: time.Millisecond}
	src.failing.Store(true)
	buf := NewFreshFrameBuffer(logs.NewTestingLog(t), src)
	_, ok := buf.LatestIfDifferent(0)
	require.False(t, ok)
	buf.Stop()
}
