package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/securewatch/sentinel/server/source"
)

// FreshFrameBuffer decouples stream ingestion from detection. A producer
// goroutine reads frames from the source as fast as they arrive and keeps
// only the newest one; the consumer asks for the latest frame whenever it is
// ready for another detection pass. Frames that arrive while the detector is
// busy are silently discarded, which keeps detection latency bounded no
// matter how slow the detector is relative to the stream.
//
// The slot is an atomic swap cell. Frames are immutable once published, so
// a consumer can never observe a half-written frame.
type FreshFrameBuffer struct {
	log logs.Log
	src source.Source

	latest atomic.Pointer[source.Frame]

	framesRead          atomic.Int64
	consecutiveFailures atomic.Int64

	mustStop atomic.Bool
	stopped  chan bool
}

// NewFreshFrameBuffer takes ownership of an opened source and starts reading
// from it. Stop closes the source.
func NewFreshFrameBuffer(log logs.Log, src source.Source) *FreshFrameBuffer {
	b := &FreshFrameBuffer{
		log:     log,
		src:     src,
		stopped: make(chan bool),
	}
	go b.produce()
	return b
}

func (b *FreshFrameBuffer) produce() {
	defer close(b.stopped)
	for !b.mustStop.Load() {
		frame, err := b.src.Read()
		if b.mustStop.Load() {
			return
		}
		if err != nil {
			b.consecutiveFailures.Add(1)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		b.consecutiveFailures.Store(0)
		b.framesRead.Add(1)
		b.latest.Store(frame)
	}
}

// LatestIfDifferent returns the newest frame, provided its frame number
// differs from lastNumber. Returns ok=false when no new frame has arrived
// since the caller last looked, or when nothing has been read yet.
func (b *FreshFrameBuffer) LatestIfDifferent(lastNumber int64) (*source.Frame, bool) {
	frame := b.latest.Load()
	if frame == nil || frame.Number == lastNumber {
		return nil, false
	}
	return frame, true
}

// ConsecutiveFailures is the number of reads that have failed since the last
// successful read. The pipeline watches this to decide when to reconnect.
func (b *FreshFrameBuffer) ConsecutiveFailures() int64 {
	return b.consecutiveFailures.Load()
}

// FramesRead is the total number of frames successfully read from the source.
func (b *FreshFrameBuffer) FramesRead() int64 {
	return b.framesRead.Load()
}

// Stop shuts the producer down and closes the source. Closing the source
// first unblocks a Read that is waiting on the network.
func (b *FreshFrameBuffer) Stop() {
	b.mustStop.Store(true)
	b.src.Close()
	<-b.stopped
}
