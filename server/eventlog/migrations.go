package eventlog

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE episode(
			id INTEGER PRIMARY KEY,
			camera_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			start_time INT NOT NULL,
			duration_ms INT NOT NULL,
			frame_count INT NOT NULL,
			detections BLOB
		);

		CREATE INDEX idx_episode_start_time ON episode(start_time);
		CREATE INDEX idx_episode_camera_id ON episode(camera_id);
	`))

	return migs
}
