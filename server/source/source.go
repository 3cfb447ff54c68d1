package source

import (
	"time"

	"github.com/bmharper/cimg/v2"
)

// Package source provides the frame source variants that feed the pipeline:
// a video file, a network MJPEG stream, and a polled HTTP snapshot endpoint.
// A Source is owned by exactly one goroutine; handles are never shared.

// A single video frame.
// The image is read-only once handed to the detector. If a frame is retained
// inside an episode, the caller must clone it first (CloneImage).
type Frame struct {
	Image     *cimg.Image
	Number    int64     // Monotonically increasing frame number within a session, starting at 1
	Timestamp time.Time // Wall clock time at which we acquired the frame
}

// Source is a stream of frames.
type Source interface {
	// Open acquires the underlying handle. A Source that fails to open can
	// be re-opened later (live/poll modes reconnect through this).
	Open() error

	// Read returns the next frame.
	// io.EOF signals normal end of stream (file mode). Any other error is a
	// transient read failure that the supervisor counts against its ceiling.
	Read() (*Frame, error)

	// Close releases the underlying handle. Safe to call when not open.
	Close()
}

// CloneImage makes a deep copy of an image, for retaining beyond the
// lifetime of the source buffer that produced it.
func CloneImage(src *cimg.Image) *cimg.Image {
	return src.Clone()
}
