package pipeline

import (
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/securewatch/sentinel/server/detect"
	"github.com/securewatch/sentinel/server/source"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func makeFrame(number int64) *source.Frame {
	return &source.Frame{
		Image:     cimg.NewImage(8, 8, cimg.PixelFormatRGB),
		Number:    number,
		Timestamp: testEpoch.Add(time.Duration(number) * 100 * time.Millisecond),
	}
}

func person(confidence float32) detect.Detection {
	return detect.Detection{
		Label:      "person",
		Confidence: confidence,
		Box:        detect.Box{X1: 1, Y1: 1, X2: 5, Y2: 6},
	}
}

func TestSegmenterSilenceClose(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		CameraID:         "cam1",
		Mode:             "live",
		SilenceThreshold: 15,
		MaxEpisodeFrames: 300,
	})

	// 5 activity frames, then silence. The episode must close on the 15th
	// consecutive silent frame, holding exactly the 5 activity frames.
	for i := int64(0); i < 5; i++ {
		require.Nil(t, seg.Observe(makeFrame(i), []detect.Detection{person(0.9)}))
	}
	require.True(t, seg.Open())
	for i := int64(5); i < 19; i++ {
		require.Nil(t, seg.Observe(makeFrame(i), nil))
	}
	closed := seg.Observe(makeFrame(19), nil)
	require.NotNil(t, closed)
	require.False(t, seg.Open())
	require.Len(t, closed.Frames, 5)
	require.Equal(t, "cam1", closed.CameraID)
	require.Equal(t, makeFrame(0).Timestamp, closed.StartTime)
	require.Equal(t, makeFrame(4).Timestamp.Sub(makeFrame(0).Timestamp), closed.Duration())
	require.Equal(t, map[string]int{"person": 5}, closed.Summary)
	for i, f := range closed.Frames {
		require.Equal(t, i, f.Seq)
	}

	// Nothing left to flush
	require.Nil(t, seg.Flush())
}

func TestSegmenterActivityResetsSilence(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		CameraID:         "cam1",
		Mode:             "live",
		SilenceThreshold: 3,
	})

	require.Nil(t, seg.Observe(makeFrame(0), []detect.Detection{person(0.8)}))
	require.Nil(t, seg.Observe(makeFrame(1), nil))
	require.Nil(t, seg.Observe(makeFrame(2), nil))
	// Activity just before the threshold keeps the episode open
	require.Nil(t, seg.Observe(makeFrame(3), []detect.Detection{person(0.8)}))
	require.Nil(t, seg.Observe(makeFrame(4), nil))
	require.Nil(t, seg.Observe(makeFrame(5), nil))
	closed := seg.Observe(makeFrame(6), nil)
	require.NotNil(t, closed)
	require.Len(t, closed.Frames, 2)
}

func TestSegmenterCapSplit(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		CameraID:         "cam1",
		Mode:             "live",
		SilenceThreshold: 15,
		MaxEpisodeFrames: 300,
	})

	var capped *Episode
	for i := int64(0); i < 305; i++ {
		closed := seg.Observe(makeFrame(i), []detect.Detection{person(0.9)})
		if closed != nil {
			require.Nil(t, capped, "only one episode may close during the burst")
			capped = closed
			require.EqualValues(t, 299, i)
		}
	}
	require.NotNil(t, capped)
	require.Len(t, capped.Frames, 300)

	// The burst continues into a second episode, anchored where the first
	// was cut, holding the 5 overflow frames.
	require.True(t, seg.Open())
	require.Equal(t, 5, seg.FrameCount())
	rest := seg.Flush()
	require.NotNil(t, rest)
	require.Len(t, rest.Frames, 5)
	require.Equal(t, makeFrame(299).Timestamp, rest.StartTime)
	require.Equal(t, 0, rest.Frames[0].Seq)
}

func TestSegmenterCapThenIdle(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		CameraID:         "cam1",
		Mode:             "poll",
		SilenceThreshold: 6,
		MaxEpisodeFrames: 120,
	})

	for i := int64(0); i < 120; i++ {
		seg.Observe(makeFrame(i), []detect.Detection{person(0.9)})
	}
	require.False(t, seg.Open())
	// The burst ends exactly at the cap. Prolonged silence returns the
	// segmenter to idle, and the next activity starts a fresh episode at
	// its own timestamp.
	for i := int64(120); i < 130; i++ {
		require.Nil(t, seg.Observe(makeFrame(i), nil))
	}
	require.Nil(t, seg.Observe(makeFrame(500), []detect.Detection{person(0.9)}))
	require.True(t, seg.Open())
	ep := seg.Flush()
	require.Equal(t, makeFrame(500).Timestamp, ep.StartTime)
}

func TestSegmenterUnbounded(t *testing.T) {
	// File mode: no thresholds, one episode, flushed by the caller at EOF
	seg := NewSegmenter(SegmenterConfig{
		CameraID: "cam1",
		Mode:     "file",
	})

	for i := int64(0); i < 50; i++ {
		require.Nil(t, seg.Observe(makeFrame(i), []detect.Detection{person(0.5)}))
	}
	// A long run of silence never closes the episode
	for i := int64(50); i < 200; i++ {
		require.Nil(t, seg.Observe(makeFrame(i), nil))
	}
	require.True(t, seg.Open())
	ep := seg.Flush()
	require.NotNil(t, ep)
	require.Len(t, ep.Frames, 50)

	// Flush is idempotent
	require.Nil(t, seg.Flush())
}

func TestSegmenterIgnoresSilenceWhenIdle(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		CameraID:         "cam1",
		Mode:             "live",
		SilenceThreshold: 15,
	})
	for i := int64(0); i < 100; i++ {
		require.Nil(t, seg.Observe(makeFrame(i), nil))
	}
	require.False(t, seg.Open())
	require.Nil(t, seg.Flush())
}

func TestSegmenterClonesFrames(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{CameraID: "cam1", Mode: "file"})
	frame := makeFrame(0)
	seg.Observe(frame, []detect.Detection{person(0.9)})
	// Mutating the source frame must not affect the retained copy
	frame.Image.Pixels[0] = 0xFF
	ep := seg.Flush()
	require.EqualValues(t, 0, ep.Frames[0].Image.Pixels[0])
}
