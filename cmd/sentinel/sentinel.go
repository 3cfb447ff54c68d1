package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/securewatch/sentinel/server/alert"
	"github.com/securewatch/sentinel/server/config"
	"github.com/securewatch/sentinel/server/deliver"
	"github.com/securewatch/sentinel/server/detect"
	"github.com/securewatch/sentinel/server/eventlog"
	"github.com/securewatch/sentinel/server/health"
	"github.com/securewatch/sentinel/server/pipeline"
	"github.com/securewatch/sentinel/server/status"
)

func main() {
	parser := argparse.NewParser("sentinel", "Camera frame analysis worker")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON)", Default: ""})
	mode := parser.String("m", "mode", &argparse.Options{Help: "Ingestion mode: file, live, or poll", Default: ""})
	src := parser.String("s", "source", &argparse.Options{Help: "Video file path, stream URL, or snapshot URL", Default: ""})
	camera := parser.String("", "camera", &argparse.Options{Help: "Camera ID reported in all outputs", Default: ""})
	detectURL := parser.String("", "detect", &argparse.Options{Help: "Object detection service URL", Default: ""})
	confidence := parser.Float("", "confidence", &argparse.Options{Help: "Minimum detection confidence (0..1)", Default: 0.0})
	username := parser.String("", "username", &argparse.Options{Help: "Camera username (live and poll modes)", Default: ""})
	password := parser.String("", "password", &argparse.Options{Help: "Camera password (live and poll modes)", Default: ""})
	basicAuth := parser.Flag("", "basicauth", &argparse.Options{Help: "Use Basic instead of Digest auth for snapshot polling", Default: false})
	redisHost := parser.String("", "redis-host", &argparse.Options{Help: "Redis host for delivery and heartbeats", Default: ""})
	redisPort := parser.Int("", "redis-port", &argparse.Options{Help: "Redis port", Default: 0})
	endpoint := parser.String("", "endpoint", &argparse.Options{Help: "HTTP fallback delivery endpoint", Default: ""})
	eventLogPath := parser.String("", "eventlog", &argparse.Options{Help: "Path of the local episode journal (SQLite)", Default: ""})
	statusAddr := parser.String("", "status", &argparse.Options{Help: "Listen address of the diagnostics API, eg :8093", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	} else {
		cfg = config.NewConfig()
	}

	// Command-line flags override the config file
	if *mode != "" {
		cfg.Mode = config.Mode(*mode)
	}
	if *src != "" {
		cfg.Source = *src
	}
	if *camera != "" {
		cfg.CameraID = *camera
	}
	if *detectURL != "" {
		cfg.DetectURL = *detectURL
	}
	if *confidence != 0 {
		cfg.Confidence = float32(*confidence)
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *basicAuth {
		cfg.BasicAuth = true
	}
	if *redisHost != "" {
		cfg.Redis.Host = *redisHost
	}
	if *redisPort != 0 {
		cfg.Redis.Port = *redisPort
	}
	if *endpoint != "" {
		cfg.FallbackEndpoint = *endpoint
	}
	if *eventLogPath != "" {
		cfg.EventLogPath = *eventLogPath
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}

	if err := cfg.Validate(); err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}
	logger.Infof("Starting camera %v in %v mode, source %v", cfg.CameraID, cfg.Mode, cfg.Source)

	// Closed exactly once, on OS signal or when the pipeline ends on its own
	shutdown := make(chan bool)
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() { close(shutdown) })
	}
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Infof("Received OS signal '%v'. Shutting down", sig.String())
		stop()
	}()

	detector := detect.NewRemoteDetector(cfg.DetectURL, cfg.Confidence, detect.DefaultAllowedClasses)

	redisAddr := ""
	if cfg.Redis.Enabled() {
		redisAddr = cfg.Redis.Addr()
	}
	deliverer := deliver.NewDeliverer(logger, redisAddr, cfg.FallbackEndpoint, cfg.DeliveryTimeout())

	tracker := status.NewTracker()

	var journal *eventlog.EventLog
	if cfg.EventLogPath != "" {
		journal, err = eventlog.Open(logger, cfg.EventLogPath)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	var gate *alert.Gate
	if cfg.Telegram.Token != "" {
		notifier, err := alert.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			// Alerting is best-effort. A worker that can't reach Telegram
			// still detects and delivers.
			logger.Warnf("Telegram alerting disabled: %v", err)
		} else {
			gate = alert.NewGate(logger, notifier, cfg.CameraID, cfg.Tuning.AlertCooldown(), cfg.Tuning.AlertConfidence)
			gate.OnSent(tracker.AddAlertSent)
			logger.Infof("Telegram alerting enabled")
		}
	}

	var reporter *health.Reporter
	if deliverer.Redis() != nil {
		reporter = health.NewReporter(logger, deliverer.Redis(), cfg.CameraID, cfg.Tuning.HeartbeatInterval(), shutdown)
	}

	var statusServer *status.Server
	if cfg.StatusAddr != "" {
		statusServer = status.NewServer(logger, tracker, journal, cfg.CameraID, string(cfg.Mode))
		go func() {
			if err := statusServer.ListenAndServe(cfg.StatusAddr); err != nil {
				logger.Errorf("Status API failed: %v", err)
			}
		}()
	}

	pipe := pipeline.NewPipeline(logger, cfg, detector, deliverer, gate, journal, tracker, shutdown)

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	exitCode := 0
	if err := pipe.Run(); err != nil {
		logger.Errorf("Pipeline failed: %v", err)
		exitCode = 1
	}
	stop()

	if reporter != nil {
		<-reporter.ShutdownComplete
	}
	if statusServer != nil {
		statusServer.Shutdown()
	}
	if journal != nil {
		journal.Close()
	}
	detector.Close()
	deliverer.Close()
	logger.Infof("Shutdown complete")
	logger.Close()
	os.Exit(exitCode)
}
