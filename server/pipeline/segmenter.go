package pipeline

import (
	"time"

	"github.com/securewatch/sentinel/server/detect"
	"github.com/securewatch/sentinel/server/source"
)

type SegmenterConfig struct {
	CameraID         string
	Mode             string
	SilenceThreshold int // Consecutive empty frames that close an episode. 0 or less disables silence closing.
	MaxEpisodeFrames int // Episode size cap. 0 or less means unbounded.
}

// Segmenter groups activity-bearing frames into episodes. It is driven by a
// single goroutine and holds no locks.
//
// An episode opens on the first frame with detections, accumulates every
// subsequent activity frame, and closes when SilenceThreshold consecutive
// empty frames arrive or when it reaches MaxEpisodeFrames. A cap-closed
// episode is followed by a continuation episode anchored at the same
// timestamp, so a long burst of activity splits cleanly with no frame lost.
type Segmenter struct {
	cfg          SegmenterConfig
	episode      *Episode
	silence      int       // Consecutive empty frames since the last activity frame
	pendingStart time.Time // Start time for the continuation after a cap close
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{
		cfg: cfg,
	}
}

// Observe feeds one processed frame into the segmenter. dets may be empty.
// If this frame causes an episode to close, the closed episode is returned
// and the caller must deliver it. Returns nil otherwise.
func (s *Segmenter) Observe(frame *source.Frame, dets []detect.Detection) *Episode {
	if len(dets) == 0 {
		return s.observeSilence()
	}
	s.silence = 0
	if s.episode == nil {
		start := frame.Timestamp
		if !s.pendingStart.IsZero() {
			start = s.pendingStart
			s.pendingStart = time.Time{}
		}
		s.episode = &Episode{
			CameraID:  s.cfg.CameraID,
			Mode:      s.cfg.Mode,
			StartTime: start,
			Summary:   map[string]int{},
		}
	}
	rec := &FrameRecord{
		Seq:         len(s.episode.Frames),
		Image:       source.CloneImage(frame.Image),
		Detections:  dets,
		Timestamp:   frame.Timestamp,
		FrameNumber: frame.Number,
	}
	s.episode.Frames = append(s.episode.Frames, rec)
	for _, d := range dets {
		s.episode.Summary[d.Label]++
	}
	if s.cfg.MaxEpisodeFrames > 0 && len(s.episode.Frames) >= s.cfg.MaxEpisodeFrames {
		closed := s.episode
		s.episode = nil
		// The burst may still be in progress. The next activity frame opens
		// a continuation episode starting where this one was cut.
		s.pendingStart = frame.Timestamp
		return closed
	}
	return nil
}

func (s *Segmenter) observeSilence() *Episode {
	if s.episode == nil {
		if !s.pendingStart.IsZero() && s.cfg.SilenceThreshold > 0 {
			s.silence++
			if s.silence >= s.cfg.SilenceThreshold {
				// The burst ended right at the cap. Back to true idle.
				s.pendingStart = time.Time{}
				s.silence = 0
			}
		}
		return nil
	}
	s.silence++
	if s.cfg.SilenceThreshold > 0 && s.silence >= s.cfg.SilenceThreshold {
		closed := s.episode
		s.episode = nil
		s.silence = 0
		return closed
	}
	return nil
}

// Flush closes and returns the open episode, or nil if none is open.
// Safe to call repeatedly; the second call is a no-op.
func (s *Segmenter) Flush() *Episode {
	closed := s.episode
	s.episode = nil
	s.silence = 0
	s.pendingStart = time.Time{}
	return closed
}

// Open reports whether an episode is currently accumulating frames.
func (s *Segmenter) Open() bool {
	return s.episode != nil
}

// FrameCount is the number of frames in the open episode (0 when closed).
func (s *Segmenter) FrameCount() int {
	if s.episode == nil {
		return 0
	}
	return len(s.episode.Frames)
}
