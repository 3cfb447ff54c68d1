package detect

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

func TestRemoteDetector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		require.Equal(t, "0.300", r.URL.Query().Get("confidence"))
		fmt.Fprint(w, `{
			"detections": [
				{"label": "person", "confidence": 0.92, "bbox": [10, 20, 110, 220]},
				{"label": "person", "confidence": 0.15, "bbox": [0, 0, 5, 5]},
				{"label": "giraffe", "confidence": 0.99, "bbox": [1, 1, 2, 2]},
				{"label": "car", "confidence": 0.55, "bbox": [50, 60, 150, 160]}
			]
		}`)
	}))
	defer server.Close()

	d := NewRemoteDetector(server.URL, 0.3, nil)
	defer d.Close()

	dets, err := d.Detect(cimg.NewImage(32, 32, cimg.PixelFormatRGB))
	require.NoError(t, err)

	// The low-confidence person and the giraffe are filtered out
	require.Len(t, dets, 2)
	require.Equal(t, "person", dets[0].Label)
	require.Equal(t, Box{X1: 10, Y1: 20, X2: 110, Y2: 220}, dets[0].Box)
	require.Equal(t, "car", dets[1].Label)
}

func TestRemoteDetectorServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewRemoteDetector(server.URL, 0.3, nil)
	defer d.Close()

	_, err := d.Detect(cimg.NewImage(32, 32, cimg.PixelFormatRGB))
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not loaded")
}

func TestRemoteDetectorDefaults(t *testing.T) {
	d := NewRemoteDetector("http://unused", 0, nil)
	require.EqualValues(t, float32(DefaultConfidenceThreshold), d.confidence)
	for _, c := range DefaultAllowedClasses {
		require.True(t, d.allowedClasses[c])
	}
}
