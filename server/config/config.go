package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Ingestion mode of the worker
type Mode string

const (
	ModeFile Mode = "file" // Process a video file, one unbounded episode, flush at EOF
	ModeLive Mode = "live" // Network MJPEG stream with fresh-frame buffering
	ModePoll Mode = "poll" // HTTP snapshot polling
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeFile, ModeLive, ModePoll:
		return true
	}
	return false
}

// Config is the complete, immutable configuration of one camera worker.
// It is built once at startup and passed by pointer into each component;
// nothing mutates it after Validate.
type Config struct {
	Mode     Mode   `json:"mode"`
	Source   string `json:"source"`   // File path, stream URL, or snapshot URL
	CameraID string `json:"cameraID"` // Identity of this camera in all outputs

	// Detection service
	DetectURL  string  `json:"detectURL"`
	Confidence float32 `json:"confidence"` // Minimum confidence, 0..1

	// Source credentials (live and poll modes)
	Username  string `json:"username"`
	Password  string `json:"password"`
	BasicAuth bool   `json:"basicAuth"` // Basic instead of Digest for snapshot polling

	// Delivery
	Redis            RedisConfig `json:"redis"`
	FallbackEndpoint string      `json:"fallbackEndpoint"` // HTTP POST sink used when Redis is absent or fails
	DeliveryTimeoutS int         `json:"deliveryTimeoutS"` // Timeout for fallback POSTs, seconds

	// Telegram alerting (disabled when Token is empty)
	Telegram TelegramConfig `json:"telegram"`

	// Local episode journal (disabled when empty)
	EventLogPath string `json:"eventLogPath"`

	// Diagnostics HTTP API, eg ":8093" (disabled when empty)
	StatusAddr string `json:"statusAddr"`

	Tuning Tuning `json:"tuning"`
}

type RedisConfig struct {
	Host string `json:"host"` // Empty disables Redis delivery and heartbeats
	Port int    `json:"port"`
}

func (r *RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%v:%v", r.Host, r.Port)
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chatID"`
}

// Tuning knobs. The defaults were chosen empirically on real camera feeds;
// they are configuration, not correctness invariants.
type Tuning struct {
	FileFrameSkip int `json:"fileFrameSkip"` // Process every Nth frame of a file
	LiveFrameSkip int `json:"liveFrameSkip"` // Process every Nth frame of a live stream

	LiveSilenceThreshold int `json:"liveSilenceThreshold"` // Silent frames that close an episode (live)
	LiveMaxEpisodeFrames int `json:"liveMaxEpisodeFrames"` // Episode size cap (live)
	PollSilenceThreshold int `json:"pollSilenceThreshold"` // Silent polls that close an episode
	PollMaxEpisodeFrames int `json:"pollMaxEpisodeFrames"` // Episode size cap (poll)

	LiveMaxReadFailures int `json:"liveMaxReadFailures"` // Consecutive failed reads before reconnect (live)
	PollMaxPollFailures int `json:"pollMaxPollFailures"` // Consecutive failed polls before reconnect
	MaxReconnects       int `json:"maxReconnects"`       // Poll mode gives up after this many reconnects

	ReconnectDelayS int `json:"reconnectDelayS"` // Seconds between teardown and reconnect
	PollIntervalMS  int `json:"pollIntervalMS"`  // Snapshot poll cadence, milliseconds

	AlertCooldownS  int     `json:"alertCooldownS"`  // Minimum seconds between Telegram alerts
	AlertConfidence float32 `json:"alertConfidence"` // Minimum confidence for an alert

	HeartbeatIntervalS int `json:"heartbeatIntervalS"`
}

func DefaultTuning() Tuning {
	return Tuning{
		FileFrameSkip:        10,
		LiveFrameSkip:        3,
		LiveSilenceThreshold: 15,
		LiveMaxEpisodeFrames: 300,
		PollSilenceThreshold: 6,
		PollMaxEpisodeFrames: 120,
		LiveMaxReadFailures:  30,
		PollMaxPollFailures:  20,
		MaxReconnects:        100,
		ReconnectDelayS:      5,
		PollIntervalMS:       500,
		AlertCooldownS:       30,
		AlertConfidence:      0.7,
		HeartbeatIntervalS:   5,
	}
}

func NewConfig() *Config {
	return &Config{
		Confidence:       0.3,
		DeliveryTimeoutS: 5,
		Redis: RedisConfig{
			Port: 6379,
		},
		Tuning: DefaultTuning(),
	}
}

// Load reads a JSON config file on top of the defaults.
func Load(filename string) (*Config, error) {
	cfg := NewConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error parsing %v: %w", filename, err)
	}
	return cfg, nil
}

// Validate catches unrecoverable configuration errors before any resource
// is acquired.
func (c *Config) Validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("Unknown mode '%v' (expected file, live, or poll)", c.Mode)
	}
	if c.Source == "" {
		return fmt.Errorf("No source specified")
	}
	if c.CameraID == "" {
		return fmt.Errorf("No camera ID specified")
	}
	if c.DetectURL == "" {
		return fmt.Errorf("No detection service URL specified")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("Confidence %v is outside [0,1]", c.Confidence)
	}
	if !c.Redis.Enabled() && c.FallbackEndpoint == "" {
		return fmt.Errorf("Neither Redis nor a fallback endpoint is configured. Detections would have nowhere to go")
	}
	return nil
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutS) * time.Second
}

func (t *Tuning) ReconnectDelay() time.Duration {
	return time.Duration(t.ReconnectDelayS) * time.Second
}

func (t *Tuning) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

func (t *Tuning) AlertCooldown() time.Duration {
	return time.Duration(t.AlertCooldownS) * time.Second
}

func (t *Tuning) HeartbeatInterval() time.Duration {
	return time.Duration(t.HeartbeatIntervalS) * time.Second
}
