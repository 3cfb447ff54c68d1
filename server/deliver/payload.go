package deliver

import (
	"time"

	"github.com/securewatch/sentinel/server/detect"
)

// Wire format of everything the worker emits. Two payload kinds travel over
// the same transports: a lightweight per-frame detection event, published as
// soon as a frame qualifies, and a complete episode, published when the
// segmenter closes it. Both carry the same confidence/box values for the
// same detection pass.

type PayloadType string

const (
	PayloadTypeDetection PayloadType = "detection"
	PayloadTypeEpisode   PayloadType = "episode"
)

type FrameDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// One detection as it appears on the wire
type EventDetection struct {
	Label          string     `json:"label"`
	Confidence     float32    `json:"confidence"`
	BBox           [4]float32 `json:"bbox"`                      // x1,y1,x2,y2 in pixels
	BBoxNormalized [4]float32 `json:"bbox_normalized,omitempty"` // Same box, divided by frame dimensions
}

// Per-frame detection event, for real-time consumers
type DetectionEvent struct {
	Type            PayloadType      `json:"type"`
	Mode            string           `json:"mode"`
	CameraID        string           `json:"camera_id"`
	FrameNumber     int64            `json:"frame_number"`
	Timestamp       string           `json:"timestamp"` // RFC3339 UTC
	FrameDimensions FrameDimensions  `json:"frame_dimensions"`
	Detections      []EventDetection `json:"detections"`
	DetectionCount  int              `json:"detection_count"`
	Engine          string           `json:"engine"`
	FrameImage      string           `json:"frame_image,omitempty"` // Base64 JPEG, only for relevant classes
}

// One frame inside an episode payload
type EpisodeFrame struct {
	Seq   int              `json:"seq"`
	Image string           `json:"image"` // Base64 JPEG
	BBox  []EventDetection `json:"bbox"`
}

// A finished episode, delivered as one unit
type EpisodePayload struct {
	Type       PayloadType    `json:"type"`
	SourceType string         `json:"source_type"` // live_stream, file_upload, or snapshot_poll
	CameraID   string         `json:"camera_id"`
	Mode       string         `json:"mode"`
	Timestamp  string         `json:"timestamp"`    // Flush time, RFC3339 UTC
	StartTime  string         `json:"start_time"`   // First activity frame, RFC3339 UTC
	DurationS  float64        `json:"duration_sec"` // From first to last frame timestamp
	Frames     []EpisodeFrame `json:"frames"`
	Summary    map[string]int `json:"detection_summary"` // class -> count
}

func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MakeEventDetections converts detector output into the wire shape,
// normalizing box coordinates against the frame dimensions.
func MakeEventDetections(dets []detect.Detection, width, height int) []EventDetection {
	out := make([]EventDetection, 0, len(dets))
	w := float32(width)
	h := float32(height)
	for _, d := range dets {
		e := EventDetection{
			Label:      d.Label,
			Confidence: d.Confidence,
			BBox:       [4]float32{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
		}
		if w > 0 && h > 0 {
			e.BBoxNormalized = [4]float32{d.Box.X1 / w, d.Box.Y1 / h, d.Box.X2 / w, d.Box.Y2 / h}
		}
		out = append(out, e)
	}
	return out
}

// HasRelevantClass reports whether the batch justifies embedding the frame
// image in a per-frame event (people and cars are what humans review).
func HasRelevantClass(dets []detect.Detection) bool {
	for _, d := range dets {
		if d.Label == "person" || d.Label == "car" {
			return true
		}
	}
	return false
}
