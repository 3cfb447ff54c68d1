package pipeline

import (
	"fmt"

	"github.com/securewatch/sentinel/server/config"
	"github.com/securewatch/sentinel/server/deliver"
	"github.com/securewatch/sentinel/server/detect"
	"github.com/securewatch/sentinel/server/source"
)

func sourceTypeForMode(mode config.Mode) string {
	switch mode {
	case config.ModeLive:
		return "live_stream"
	case config.ModePoll:
		return "snapshot_poll"
	default:
		return "file_upload"
	}
}

// buildEpisodePayload serializes a closed episode into the wire format.
// flushedAt is the payload timestamp; the episode start time rides alongside.
func buildEpisodePayload(ep *Episode, flushedAt string) (*deliver.EpisodePayload, error) {
	frames := make([]deliver.EpisodeFrame, 0, len(ep.Frames))
	for _, f := range ep.Frames {
		img, err := deliver.EncodeBase64JPEG(f.Image)
		if err != nil {
			return nil, fmt.Errorf("Failed to encode episode frame %v: %w", f.Seq, err)
		}
		frames = append(frames, deliver.EpisodeFrame{
			Seq:   f.Seq,
			Image: img,
			BBox:  deliver.MakeEventDetections(f.Detections, f.Image.Width, f.Image.Height),
		})
	}
	return &deliver.EpisodePayload{
		Type:       deliver.PayloadTypeEpisode,
		SourceType: sourceTypeForMode(config.Mode(ep.Mode)),
		CameraID:   ep.CameraID,
		Mode:       ep.Mode,
		Timestamp:  flushedAt,
		StartTime:  deliver.Timestamp(ep.StartTime),
		DurationS:  ep.Duration().Seconds(),
		Frames:     frames,
		Summary:    ep.Summary,
	}, nil
}

// buildDetectionEvent makes the lightweight per-frame event. The annotated
// frame image is embedded only when the batch contains a class a human would
// want to look at.
func buildDetectionEvent(cameraID string, mode config.Mode, frame *source.Frame, dets []detect.Detection) *deliver.DetectionEvent {
	ev := &deliver.DetectionEvent{
		Type:        deliver.PayloadTypeDetection,
		Mode:        string(mode),
		CameraID:    cameraID,
		FrameNumber: frame.Number,
		Timestamp:   deliver.Timestamp(frame.Timestamp),
		FrameDimensions: deliver.FrameDimensions{
			Width:  frame.Image.Width,
			Height: frame.Image.Height,
		},
		Detections:     deliver.MakeEventDetections(dets, frame.Image.Width, frame.Image.Height),
		DetectionCount: len(dets),
		Engine:         "remote",
	}
	if deliver.HasRelevantClass(dets) {
		if annotated, err := deliver.Annotate(frame.Image, dets); err == nil {
			if b64, err := deliver.EncodeBase64JPEG(annotated); err == nil {
				ev.FrameImage = b64
			}
		}
	}
	return ev
}
