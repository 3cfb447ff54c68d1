package eventlog

import (
	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Episode is one delivered episode, journaled locally so operators can audit
// what a camera produced even when the downstream consumers lose it.
type Episode struct {
	BaseModel
	CameraID   string                         `json:"cameraID"`
	Mode       string                         `json:"mode"`
	StartTime  dbh.IntTime                    `json:"startTime"`
	DurationMS int64                          `json:"durationMS"`
	FrameCount int                            `json:"frameCount"`
	Detections *dbh.JSONField[map[string]int] `json:"detections"` // class label -> count
}
