package pipeline

import (
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/securewatch/sentinel/server/detect"
)

// A frame that carried at least one qualifying detection, retained inside an
// episode. The image is an owned copy; nothing else references it.
type FrameRecord struct {
	Seq         int                // Position within the episode, starting at 0
	Image       *cimg.Image        // Owned clone of the source frame
	Detections  []detect.Detection // What the detector saw
	Timestamp   time.Time
	FrameNumber int64 // Frame number in the source stream
}

// Episode is a contiguous run of activity-bearing frames, bounded by silence
// or by the episode size cap, delivered downstream as one unit.
type Episode struct {
	CameraID  string
	Mode      string
	StartTime time.Time
	Frames    []*FrameRecord
	Summary   map[string]int // class label -> detection count
}

// Duration is measured from frame timestamps, never from frame counts:
// decimation makes counts meaningless for wall-clock math.
func (e *Episode) Duration() time.Duration {
	if len(e.Frames) < 2 {
		return 0
	}
	return e.Frames[len(e.Frames)-1].Timestamp.Sub(e.Frames[0].Timestamp)
}

// Total number of detections across all frames
func (e *Episode) DetectionCount() int {
	n := 0
	for _, c := range e.Summary {
		n += c
	}
	return n
}
