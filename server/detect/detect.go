package detect

import (
	"github.com/bmharper/cimg/v2"
)

// Package detect is the interface layer between the pipeline and an object
// detection capability. The detector itself runs out of process; we only see
// its normalized output.

const DefaultConfidenceThreshold = 0.3

// Classes that matter for surveillance. Everything else a model reports is
// discarded before it reaches the segmenter.
var DefaultAllowedClasses = []string{"person", "car", "truck", "motorcycle", "bicycle", "bus"}

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// A single detected object in a frame
type Detection struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"` // 0..1
	Box        Box     `json:"box"`
}

// Detector is given an image, and returns zero or more detected objects.
// Implementations must be deterministic for the same image and threshold.
type Detector interface {
	// Close releases any resources held by the detector
	Close()

	// Detect returns the qualifying objects found in the image.
	// Results are already filtered by the class allow-list and the
	// confidence threshold.
	Detect(img *cimg.Image) ([]Detection, error)
}
