package deliver

import (
	"encoding/base64"
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"
	"github.com/securewatch/sentinel/server/detect"
)

// Rendering of bounding boxes and labels onto frames before they ride
// inside payloads or alerts.

type boxColor struct {
	r, g, b int
}

var classColors = map[string]boxColor{
	"person":     {0, 255, 0},
	"car":        {0, 165, 255},
	"truck":      {0, 0, 255},
	"motorcycle": {0, 255, 255},
	"bicycle":    {255, 255, 0},
	"bus":        {128, 0, 128},
}

var defaultBoxColor = boxColor{0, 255, 0}

// Annotate returns a copy of the frame with a labelled box drawn around
// every detection. The input image is not modified.
func Annotate(img *cimg.Image, dets []detect.Detection) (*cimg.Image, error) {
	converted, err := img.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Failed to convert frame for annotation: %w", err)
	}
	rgba, ok := converted.(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("Unexpected frame pixel format %v", img.Format)
	}
	dc := gg.NewContextForRGBA(rgba)
	for _, d := range dets {
		col, ok := classColors[d.Label]
		if !ok {
			col = defaultBoxColor
		}
		x := float64(d.Box.X1)
		y := float64(d.Box.Y1)
		w := float64(d.Box.Width())
		h := float64(d.Box.Height())

		dc.SetRGB255(col.r, col.g, col.b)
		dc.SetLineWidth(3)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		label := fmt.Sprintf("%v %.0f%%", d.Label, d.Confidence*100)
		lw, lh := dc.MeasureString(label)
		dc.DrawRectangle(x, y-lh-8, lw+6, lh+8)
		dc.Fill()
		dc.SetRGB255(0, 0, 0)
		dc.DrawString(label, x+3, y-5)
	}
	return cimg.FromImage(rgba, true)
}

// EncodeJPEG compresses a frame at the quality we use for payload images.
func EncodeJPEG(img *cimg.Image) ([]byte, error) {
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
}

// EncodeBase64JPEG is EncodeJPEG plus base64, the format payloads embed.
func EncodeBase64JPEG(img *cimg.Image) (string, error) {
	jpg, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(jpg), nil
}
