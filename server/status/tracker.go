package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/ringbuffer"
)

// Connection state of the frame source, as reported on the status API
const (
	ConnectionIdle         = "idle"
	ConnectionConnected    = "connected"
	ConnectionReconnecting = "reconnecting"
	ConnectionFinished     = "finished"
)

// Summary of a delivered episode, retained for the recent-events API
type EpisodeSummary struct {
	CameraID   string         `json:"cameraID"`
	Mode       string         `json:"mode"`
	StartTime  time.Time      `json:"startTime"`
	Duration   float64        `json:"durationSeconds"`
	FrameCount int            `json:"frameCount"`
	Detections map[string]int `json:"detections"`
	FlushedAt  time.Time      `json:"flushedAt"`
}

// Tracker accumulates pipeline counters. Counter updates come from the
// pipeline goroutine; reads come from the HTTP status handlers, so
// everything here is either atomic or behind a lock.
type Tracker struct {
	startedAt time.Time

	framesSeen        atomic.Int64
	framesProcessed   atomic.Int64
	detections        atomic.Int64
	episodes          atomic.Int64
	deliveryFailures  atomic.Int64
	alertsSent        atomic.Int64
	reconnects        atomic.Int64
	detectionFailures atomic.Int64

	lock       sync.Mutex
	connection string
	recent     ringbuffer.RingP[EpisodeSummary]
}

// Ring allocation size. NewRingP keeps one slot spare, so the ring retains
// recentEpisodeRing-1 episodes.
const recentEpisodeRing = 64 // must be a power of 2

func NewTracker() *Tracker {
	return &Tracker{
		startedAt:  time.Now(),
		connection: ConnectionIdle,
		recent:     ringbuffer.NewRingP[EpisodeSummary](recentEpisodeRing),
	}
}

func (t *Tracker) AddFramesSeen(n int64) { t.framesSeen.Add(n) }
func (t *Tracker) AddFrameProcessed()    { t.framesProcessed.Add(1) }
func (t *Tracker) AddDetections(n int64) { t.detections.Add(n) }
func (t *Tracker) AddDeliveryFailure()   { t.deliveryFailures.Add(1) }
func (t *Tracker) AddAlertSent()         { t.alertsSent.Add(1) }
func (t *Tracker) AddReconnect()         { t.reconnects.Add(1) }
func (t *Tracker) AddDetectionFailure()  { t.detectionFailures.Add(1) }

func (t *Tracker) SetConnection(state string) {
	t.lock.Lock()
	t.connection = state
	t.lock.Unlock()
}

func (t *Tracker) AddEpisode(sum EpisodeSummary) {
	t.episodes.Add(1)
	t.lock.Lock()
	t.recent.Add(sum)
	t.lock.Unlock()
}

// Snapshot of every counter, for the status API
type Snapshot struct {
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	Connection        string  `json:"connection"`
	FramesSeen        int64   `json:"framesSeen"`
	FramesProcessed   int64   `json:"framesProcessed"`
	Detections        int64   `json:"detections"`
	DetectionFailures int64   `json:"detectionFailures"`
	Episodes          int64   `json:"episodes"`
	DeliveryFailures  int64   `json:"deliveryFailures"`
	AlertsSent        int64   `json:"alertsSent"`
	Reconnects        int64   `json:"reconnects"`
}

func (t *Tracker) Snapshot() Snapshot {
	t.lock.Lock()
	conn := t.connection
	t.lock.Unlock()
	return Snapshot{
		UptimeSeconds:     time.Since(t.startedAt).Seconds(),
		Connection:        conn,
		FramesSeen:        t.framesSeen.Load(),
		FramesProcessed:   t.framesProcessed.Load(),
		Detections:        t.detections.Load(),
		DetectionFailures: t.detectionFailures.Load(),
		Episodes:          t.episodes.Load(),
		DeliveryFailures:  t.deliveryFailures.Load(),
		AlertsSent:        t.alertsSent.Load(),
		Reconnects:        t.reconnects.Load(),
	}
}

// RecentEpisodes returns the retained delivered episodes, oldest first.
func (t *Tracker) RecentEpisodes() []EpisodeSummary {
	t.lock.Lock()
	defer t.lock.Unlock()
	out := make([]EpisodeSummary, 0, t.recent.Len())
	for i := 0; i < t.recent.Len(); i++ {
		out = append(out, t.recent.Peek(i))
	}
	return out
}
