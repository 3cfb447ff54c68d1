package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bmharper/cimg/v2"
)

// RemoteDetector talks to a YOLO-style inference service over HTTP.
// We POST a JPEG, the service replies with a JSON list of detections.
// The service is assumed to be rate-matched to the frame cadence, so we
// place no deadline on the request beyond the transport's own limits.
type RemoteDetector struct {
	url            string
	confidence     float32
	allowedClasses map[string]bool
	client         *http.Client
}

// Wire format of the inference service response
type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

type remoteDetection struct {
	Label      string     `json:"label"`
	Confidence float32    `json:"confidence"`
	BBox       [4]float32 `json:"bbox"` // x1,y1,x2,y2 in pixels
}

func NewRemoteDetector(url string, confidence float32, allowedClasses []string) *RemoteDetector {
	if confidence <= 0 {
		confidence = DefaultConfidenceThreshold
	}
	if len(allowedClasses) == 0 {
		allowedClasses = DefaultAllowedClasses
	}
	allowed := map[string]bool{}
	for _, c := range allowedClasses {
		allowed[c] = true
	}
	return &RemoteDetector{
		url:            url,
		confidence:     confidence,
		allowedClasses: allowed,
		client:         &http.Client{},
	}
}

func (d *RemoteDetector) Close() {
	d.client.CloseIdleConnections()
}

func (d *RemoteDetector) Detect(img *cimg.Image) ([]Detection, error) {
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to encode frame for detection: %w", err)
	}
	url := fmt.Sprintf("%v?confidence=%.3f", d.url, d.confidence)
	req, err := http.NewRequest("POST", url, bytes.NewReader(jpg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Detection service returned %v. %v", resp.Status, string(msg))
	}
	raw := remoteResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("Failed to decode detection response: %w", err)
	}
	return d.filter(raw.Detections), nil
}

// Apply the class allow-list and confidence floor to the raw model output
func (d *RemoteDetector) filter(raw []remoteDetection) []Detection {
	out := []Detection{}
	for _, r := range raw {
		if !d.allowedClasses[r.Label] {
			continue
		}
		if r.Confidence < d.confidence {
			continue
		}
		out = append(out, Detection{
			Label:      r.Label,
			Confidence: r.Confidence,
			Box: Box{
				X1: r.BBox[0],
				Y1: r.BBox[1],
				X2: r.BBox[2],
				Y2: r.BBox[3],
			},
		})
	}
	return out
}
