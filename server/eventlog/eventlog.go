// Package eventlog is a local SQLite journal of delivered episodes.
package eventlog

import (
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

type EventLog struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create the episode journal
func Open(log logs.Log, dbPath string) (*EventLog, error) {
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbPath), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open event log at '%v': %w", dbPath, err)
	}
	return &EventLog{
		log: log,
		db:  db,
	}, nil
}

// AddEpisode journals one delivered episode.
func (e *EventLog) AddEpisode(cameraID, mode string, start time.Time, duration time.Duration, frameCount int, detections map[string]int) error {
	ep := &Episode{
		CameraID:   cameraID,
		Mode:       mode,
		StartTime:  dbh.MakeIntTime(start),
		DurationMS: duration.Milliseconds(),
		FrameCount: frameCount,
		Detections: dbh.MakeJSONField(detections),
	}
	if err := e.db.Create(ep).Error; err != nil {
		return fmt.Errorf("Failed to journal episode: %w", err)
	}
	return nil
}

// RecentEpisodes returns the most recent episodes, newest first.
func (e *EventLog) RecentEpisodes(limit int) ([]Episode, error) {
	eps := []Episode{}
	if err := e.db.Order("start_time DESC").Limit(limit).Find(&eps).Error; err != nil {
		return nil, err
	}
	return eps, nil
}

func (e *EventLog) Close() {
	if sql, err := e.db.DB(); err == nil {
		sql.Close()
	}
}
