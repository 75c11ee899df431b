package scoredb

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
		CREATE TABLE monitoring_session(
			id INTEGER PRIMARY KEY,
			mode TEXT NOT NULL,
			subject TEXT,
			start_time INT NOT NULL,
			end_time INT,
			status TEXT NOT NULL
		);

		CREATE TABLE window_score(
			id INTEGER PRIMARY KEY,
			session_id INT NOT NULL,
			subject TEXT NOT NULL,
			time INT NOT NULL,
			score REAL NOT NULL,
			dominant_emotion TEXT
		);
		CREATE INDEX idx_window_score_session_id ON window_score(session_id);
		CREATE INDEX idx_window_score_subject ON window_score(subject);

		CREATE TABLE session_score(
			id INTEGER PRIMARY KEY,
			session_id INT NOT NULL,
			subject TEXT NOT NULL,
			score REAL NOT NULL,
			updated_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_session_score_session_subject ON session_score(session_id, subject);

		CREATE TABLE survey_result(
			id INTEGER PRIMARY KEY,
			session_id INT NOT NULL,
			subject TEXT NOT NULL,
			avg_score REAL NOT NULL,
			dominant_emotion TEXT NOT NULL,
			detection_count INT NOT NULL,
			detections BLOB,
			created_at INT NOT NULL
		);
		CREATE INDEX idx_survey_result_session_id ON survey_result(session_id);
	`))

	return migs
}
