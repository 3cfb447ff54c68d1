// Package alert rate-limits push notifications for high-confidence person
// detections.
package alert

import (
	"fmt"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/securewatch/sentinel/server/deliver"
	"github.com/securewatch/sentinel/server/detect"
)

// The one class worth waking a human for
const alertClass = "person"

// Gate decides which detection batches become notifications. At most one
// alert per batch, and never more often than the cooldown. Only Observe
// touches lastAlert, and Observe is called from a single goroutine; the send
// itself happens on a throwaway goroutine so a slow Telegram round-trip
// never stalls the pipeline.
type Gate struct {
	log           logs.Log
	notifier      Notifier
	cameraID      string
	cooldown      time.Duration
	minConfidence float32
	lastAlert     time.Time
	onSent        func() // Optional counter hook, called after a successful send
}

func NewGate(log logs.Log, notifier Notifier, cameraID string, cooldown time.Duration, minConfidence float32) *Gate {
	return &Gate{
		log:           log,
		notifier:      notifier,
		cameraID:      cameraID,
		cooldown:      cooldown,
		minConfidence: minConfidence,
	}
}

// OnSent registers a hook that runs after each successfully sent alert.
func (g *Gate) OnSent(fn func()) {
	g.onSent = fn
}

// Observe considers one frame's detections for alerting. Returns true if an
// alert was fired. The frame image is cloned before the async send, so the
// caller may reuse it.
func (g *Gate) Observe(now time.Time, img *cimg.Image, dets []detect.Detection) bool {
	if g.notifier == nil {
		return false
	}
	if !g.lastAlert.IsZero() && now.Sub(g.lastAlert) < g.cooldown {
		return false
	}
	for _, d := range dets {
		if d.Label != alertClass || d.Confidence < g.minConfidence {
			continue
		}
		annotated, err := deliver.Annotate(img, dets)
		if err != nil {
			g.log.Errorf("Failed to annotate alert image: %v", err)
			return false
		}
		jpg, err := deliver.EncodeJPEG(annotated)
		if err != nil {
			g.log.Errorf("Failed to encode alert image: %v", err)
			return false
		}
		caption := fmt.Sprintf("🚨 Person detected on %v (%.0f%% confidence)", g.cameraID, d.Confidence*100)
		g.lastAlert = now
		go g.send(jpg, caption)
		return true
	}
	return false
}

func (g *Gate) send(jpg []byte, caption string) {
	if err := g.notifier.SendPhoto(jpg, caption); err != nil {
		g.log.Warnf("Alert delivery failed: %v", err)
		return
	}
	g.log.Infof("Alert sent: %v", caption)
	if g.onSent != nil {
		g.onSent()
	}
}
