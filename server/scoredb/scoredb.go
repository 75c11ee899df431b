package scoredb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/wellmon/server/detect"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScoreDB stores monitoring sessions and their aggregated emotion scores.
// Raw per-frame detections never land here; only the windowed aggregates,
// per-session summaries, and survey results survive a session.
type ScoreDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create the score DB
func Open(logger logs.Log, dbFilename string) (*ScoreDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open score database %v: %w", dbFilename, err)
	}
	return &ScoreDB{
		Log: logger,
		DB:  db,
	}, nil
}

// CreateSession records the start of a monitoring session.
// Status starts out as 'running'; a crash leaves it that way, which is how we
// recognize sessions that never stopped cleanly.
func (s *ScoreDB) CreateSession(mode, subject string, startTime time.Time) (*MonitoringSession, error) {
	session := &MonitoringSession{
		Mode:      mode,
		Subject:   subject,
		StartTime: dbh.MakeIntTime(startTime),
		Status:    SessionStatusRunning,
	}
	if err := s.DB.Create(session).Error; err != nil {
		return nil, fmt.Errorf("Failed to create monitoring session: %w", err)
	}
	return session, nil
}

// CloseSession marks a session terminal ('completed' or 'partial').
func (s *ScoreDB) CloseSession(sessionID int64, status string, endTime time.Time) error {
	return s.DB.Model(&MonitoringSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"status":   status,
			"end_time": dbh.MakeIntTime(endTime),
		}).Error
}

// GetSession fetches one session by ID
func (s *ScoreDB) GetSession(sessionID int64) (*MonitoringSession, error) {
	session := &MonitoringSession{}
	if err := s.DB.First(session, sessionID).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// AddWindowScore stores one flushed aggregation window.
func (s *ScoreDB) AddWindowScore(sessionID int64, subject string, t time.Time, score float64, dominantEmotion string) error {
	ws := &WindowScore{
		SessionID:       sessionID,
		Subject:         subject,
		Time:            dbh.MakeIntTime(t),
		Score:           score,
		DominantEmotion: dominantEmotion,
	}
	return s.DB.Create(ws).Error
}

// WindowScores returns all flushed windows for a session, oldest first.
func (s *ScoreDB) WindowScores(sessionID int64) ([]WindowScore, error) {
	scores := []WindowScore{}
	err := s.DB.Where("session_id = ?", sessionID).Order("time").Find(&scores).Error
	return scores, err
}

// UpsertSessionScore writes the per-subject end-of-session average. Keyed by
// (session, subject), so re-running a stop is idempotent.
func (s *ScoreDB) UpsertSessionScore(sessionID int64, subject string, score float64) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "subject"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(&SessionScore{
		SessionID: sessionID,
		Subject:   subject,
		Score:     score,
		UpdatedAt: dbh.MakeIntTime(time.Now()),
	}).Error
}

// SessionScores returns the per-subject averages of a session.
func (s *ScoreDB) SessionScores(sessionID int64) ([]SessionScore, error) {
	scores := []SessionScore{}
	err := s.DB.Where("session_id = ?", sessionID).Order("subject").Find(&scores).Error
	return scores, err
}

// StoreSurveyResult stores the terminal summary of a survey session,
// including the full retained detection list for per-segment analysis.
func (s *ScoreDB) StoreSurveyResult(sessionID int64, subject string, avgScore float64, dominantEmotion string, detections []detect.Detection) error {
	sr := &SurveyResult{
		SessionID:       sessionID,
		Subject:         subject,
		AvgScore:        avgScore,
		DominantEmotion: dominantEmotion,
		DetectionCount:  len(detections),
		Detections:      dbh.MakeJSONField(detections),
		CreatedAt:       dbh.MakeIntTime(time.Now()),
	}
	return s.DB.Create(sr).Error
}

// GetSurveyResult fetches the stored result for a survey session.
func (s *ScoreDB) GetSurveyResult(sessionID int64) (*SurveyResult, error) {
	sr := &SurveyResult{}
	if err := s.DB.First(sr, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return sr, nil
}
