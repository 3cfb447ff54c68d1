// Package pipeline runs the frame ingestion loop of one camera worker:
// read frames, detect objects, segment activity into episodes, and hand
// everything downstream.
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/securewatch/sentinel/server/alert"
	"github.com/securewatch/sentinel/server/config"
	"github.com/securewatch/sentinel/server/deliver"
	"github.com/securewatch/sentinel/server/detect"
	"github.com/securewatch/sentinel/server/eventlog"
	"github.com/securewatch/sentinel/server/source"
	"github.com/securewatch/sentinel/server/status"
)

// How long we sleep when the fresh-frame buffer has nothing new for us
const idlePollInterval = 5 * time.Millisecond

type Pipeline struct {
	Log       logs.Log
	cfg       *config.Config
	detector  detect.Detector
	deliverer *deliver.Deliverer
	gate      *alert.Gate        // nil when alerting is disabled
	journal   *eventlog.EventLog // nil when journaling is disabled
	tracker   *status.Tracker
	shutdown  chan bool
	seg       *Segmenter

	lastDetectErrAt time.Time // For rate-limiting detection error logs
}

func NewPipeline(log logs.Log, cfg *config.Config, detector detect.Detector, deliverer *deliver.Deliverer, gate *alert.Gate, journal *eventlog.EventLog, tracker *status.Tracker, shutdown chan bool) *Pipeline {
	segCfg := SegmenterConfig{
		CameraID: cfg.CameraID,
		Mode:     string(cfg.Mode),
	}
	// File mode runs one unbounded episode, flushed at EOF, so both
	// thresholds stay zero there.
	switch cfg.Mode {
	case config.ModeLive:
		segCfg.SilenceThreshold = cfg.Tuning.LiveSilenceThreshold
		segCfg.MaxEpisodeFrames = cfg.Tuning.LiveMaxEpisodeFrames
	case config.ModePoll:
		segCfg.SilenceThreshold = cfg.Tuning.PollSilenceThreshold
		segCfg.MaxEpisodeFrames = cfg.Tuning.PollMaxEpisodeFrames
	}
	return &Pipeline{
		Log:       log,
		cfg:       cfg,
		detector:  detector,
		deliverer: deliverer,
		gate:      gate,
		journal:   journal,
		tracker:   tracker,
		shutdown:  shutdown,
		seg:       NewSegmenter(segCfg),
	}
}

// Run blocks until the source is exhausted (file mode), the shutdown channel
// closes, or the pipeline gives up on a source that will not come back.
// Whatever happens, any open episode is flushed before Run returns.
func (p *Pipeline) Run() error {
	defer p.flushOpenEpisode()
	switch p.cfg.Mode {
	case config.ModeFile:
		return p.runFile()
	case config.ModeLive:
		return p.runLive()
	case config.ModePoll:
		return p.runPoll()
	}
	// Mode is validated at startup
	return fmt.Errorf("Unknown mode '%v'", p.cfg.Mode)
}

func (p *Pipeline) isShutdown() bool {
	select {
	case <-p.shutdown:
		return true
	default:
		return false
	}
}

// sleepReconnect waits out the reconnect delay, returning early on shutdown
func (p *Pipeline) sleepReconnect() {
	select {
	case <-p.shutdown:
	case <-time.After(p.cfg.Tuning.ReconnectDelay()):
	}
}

// File mode: every frame is available instantly, so there is no buffering
// and no reconnect. Source errors are fatal; EOF is the normal ending.
func (p *Pipeline) runFile() error {
	src := source.NewFileSource(p.cfg.Source)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()
	p.tracker.SetConnection(status.ConnectionConnected)
	skip := int64(p.cfg.Tuning.FileFrameSkip)
	if skip < 1 {
		skip = 1
	}
	for !p.isShutdown() {
		frame, err := src.Read()
		if err == io.EOF {
			p.Log.Infof("Reached end of %v", p.cfg.Source)
			break
		}
		if err != nil {
			return err
		}
		p.tracker.AddFramesSeen(1)
		if frame.Number%skip != 0 {
			continue
		}
		p.processFrame(frame)
	}
	p.tracker.SetConnection(status.ConnectionFinished)
	return nil
}

// Live mode: a fresh-frame buffer drains the stream on its own goroutine
// while we run detection on the newest frame available. Too many consecutive
// read failures tears the connection down and reconnects, forever.
func (p *Pipeline) runLive() error {
	for !p.isShutdown() {
		src := source.NewStreamSource(p.cfg.Source, p.cfg.Username, p.cfg.Password)
		if err := src.Open(); err != nil {
			p.Log.Warnf("Failed to open stream %v: %v", p.cfg.Source, err)
		} else {
			p.tracker.SetConnection(status.ConnectionConnected)
			p.Log.Infof("Connected to stream %v", p.cfg.Source)
			buf := NewFreshFrameBuffer(p.Log, src)
			p.streamSession(buf)
			buf.Stop()
		}
		if p.isShutdown() {
			break
		}
		p.tracker.SetConnection(status.ConnectionReconnecting)
		p.tracker.AddReconnect()
		p.Log.Infof("Reconnecting to %v in %v", p.cfg.Source, p.cfg.Tuning.ReconnectDelay())
		p.sleepReconnect()
	}
	return nil
}

// One connected stream session. Returns when the read failure ceiling is hit
// or shutdown is signalled. Any open episode is flushed before the caller
// tears the connection down.
func (p *Pipeline) streamSession(buf *FreshFrameBuffer) {
	maxFailures := int64(p.cfg.Tuning.LiveMaxReadFailures)
	skip := int64(p.cfg.Tuning.LiveFrameSkip)
	if skip < 1 {
		skip = 1
	}
	lastNumber := int64(0)
	for !p.isShutdown() {
		if buf.ConsecutiveFailures() >= maxFailures {
			p.Log.Warnf("%v consecutive read failures. Closing episode and reconnecting", maxFailures)
			p.flushOpenEpisode()
			return
		}
		frame, ok := buf.LatestIfDifferent(lastNumber)
		if !ok {
			time.Sleep(idlePollInterval)
			continue
		}
		p.tracker.AddFramesSeen(frame.Number - lastNumber)
		lastNumber = frame.Number
		if frame.Number%skip != 0 {
			continue
		}
		p.processFrame(frame)
	}
}

// Poll mode: fetch one snapshot per interval, compensating for how long the
// fetch and detection took. Unlike live mode, a source that keeps failing
// eventually exhausts its reconnect budget and the worker exits.
func (p *Pipeline) runPoll() error {
	reconnects := 0
	for !p.isShutdown() {
		err := p.pollSession()
		if err == nil {
			return nil
		}
		reconnects++
		p.tracker.AddReconnect()
		if reconnects >= p.cfg.Tuning.MaxReconnects {
			p.Log.Errorf("Giving up on %v after %v reconnects", p.cfg.Source, reconnects)
			return fmt.Errorf("Snapshot source %v failed permanently: %w", p.cfg.Source, err)
		}
		p.tracker.SetConnection(status.ConnectionReconnecting)
		p.Log.Warnf("Poll session failed: %v. Reconnecting in %v (attempt %v/%v)", err, p.cfg.Tuning.ReconnectDelay(), reconnects, p.cfg.Tuning.MaxReconnects)
		p.sleepReconnect()
	}
	return nil
}

// One polling session. Returns nil on shutdown, or an error once the
// consecutive failure ceiling is reached.
func (p *Pipeline) pollSession() error {
	src := source.NewSnapshotSource(p.cfg.Source, p.cfg.Username, p.cfg.Password, p.cfg.BasicAuth)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()
	p.tracker.SetConnection(status.ConnectionConnected)
	interval := p.cfg.Tuning.PollInterval()
	maxFailures := p.cfg.Tuning.PollMaxPollFailures
	failures := 0
	for !p.isShutdown() {
		start := time.Now()
		frame, err := src.Read()
		if err != nil {
			failures++
			p.Log.Warnf("Snapshot fetch failed (%v/%v): %v", failures, maxFailures, err)
			if failures >= maxFailures {
				p.flushOpenEpisode()
				return fmt.Errorf("%v consecutive snapshot failures", failures)
			}
		} else {
			failures = 0
			p.tracker.AddFramesSeen(1)
			p.processFrame(frame)
		}
		// Keep the poll cadence steady regardless of fetch and detection time
		elapsed := time.Since(start)
		if remaining := interval - elapsed; remaining > 0 {
			select {
			case <-p.shutdown:
			case <-time.After(remaining):
			}
		}
	}
	return nil
}

// processFrame runs detection on one frame and feeds everything downstream:
// the per-frame event, the alert gate, and the segmenter. A detection error
// skips the frame without touching the segmenter, so a flaky detector cannot
// close an episode through false silence.
func (p *Pipeline) processFrame(frame *source.Frame) {
	p.tracker.AddFrameProcessed()
	dets, err := p.detector.Detect(frame.Image)
	if err != nil {
		p.tracker.AddDetectionFailure()
		if time.Since(p.lastDetectErrAt) > 15*time.Second {
			p.lastDetectErrAt = time.Now()
			p.Log.Errorf("Detection failed: %v", err)
		}
		return
	}
	if len(dets) > 0 {
		p.tracker.AddDetections(int64(len(dets)))
		ev := buildDetectionEvent(p.cfg.CameraID, p.cfg.Mode, frame, dets)
		if err := p.deliverer.Deliver(ev); err != nil {
			p.tracker.AddDeliveryFailure()
		}
		if p.gate != nil {
			p.gate.Observe(frame.Timestamp, frame.Image, dets)
		}
	}
	if closed := p.seg.Observe(frame, dets); closed != nil {
		p.publishEpisode(closed)
	}
}

// flushOpenEpisode closes and delivers the open episode, if any. Idempotent.
func (p *Pipeline) flushOpenEpisode() {
	if ep := p.seg.Flush(); ep != nil {
		p.publishEpisode(ep)
	}
}

func (p *Pipeline) publishEpisode(ep *Episode) {
	flushedAt := time.Now()
	p.Log.Infof("Episode closed: %v frames, %.1f seconds, %v detections", len(ep.Frames), ep.Duration().Seconds(), ep.DetectionCount())
	payload, err := buildEpisodePayload(ep, deliver.Timestamp(flushedAt))
	if err != nil {
		p.Log.Errorf("Failed to build episode payload: %v", err)
		return
	}
	if err := p.deliverer.Deliver(payload); err != nil {
		p.tracker.AddDeliveryFailure()
	}
	p.tracker.AddEpisode(status.EpisodeSummary{
		CameraID:   ep.CameraID,
		Mode:       ep.Mode,
		StartTime:  ep.StartTime,
		Duration:   ep.Duration().Seconds(),
		FrameCount: len(ep.Frames),
		Detections: ep.Summary,
		FlushedAt:  flushedAt,
	})
	if p.journal != nil {
		if err := p.journal.AddEpisode(ep.CameraID, ep.Mode, ep.StartTime, ep.Duration(), len(ep.Frames), ep.Summary); err != nil {
			p.Log.Errorf("%v", err)
		}
	}
}
