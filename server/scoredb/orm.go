package scoredb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/wellmon/server/detect"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

const (
	ModeGeneral = "general" // Continuous multi-subject monitoring
	ModeSurvey  = "survey"  // Session scoped to one pre-authenticated subject
)

const (
	SessionStatusRunning   = "running"
	SessionStatusPartial   = "partial" // Stopped, but not all data made it out cleanly
	SessionStatusCompleted = "completed"
)

// MonitoringSession identifies one monitoring run.
type MonitoringSession struct {
	BaseModel
	Mode      string      `json:"mode"`
	Subject   string      `json:"subject,omitempty"` // Only set for survey sessions
	StartTime dbh.IntTime `json:"startTime"`
	EndTime   dbh.IntTime `json:"endTime,omitempty"`
	Status    string      `json:"status"`
}

// WindowScore is the aggregate of one flush window for one subject.
// Write-once.
type WindowScore struct {
	BaseModel
	SessionID       int64       `json:"sessionID"`
	Subject         string      `json:"subject"`
	Time            dbh.IntTime `json:"time"`
	Score           float64     `json:"score"`
	DominantEmotion string      `json:"dominantEmotion"`
}

// SessionScore is a subject's average over an entire general-mode session
// (the mean of that subject's WindowScores, keyed by session, not by date).
type SessionScore struct {
	BaseModel
	SessionID int64       `json:"sessionID"`
	Subject   string      `json:"subject"`
	Score     float64     `json:"score"`
	UpdatedAt dbh.IntTime `json:"updatedAt"`
}

// SurveyResult is the terminal summary of a survey session.
type SurveyResult struct {
	BaseModel
	SessionID       int64                              `json:"sessionID"`
	Subject         string                             `json:"subject"`
	AvgScore        float64                            `json:"avgScore"`
	DominantEmotion string                             `json:"dominantEmotion"`
	DetectionCount  int                                `json:"detectionCount"`
	Detections      *dbh.JSONField[[]detect.Detection] `json:"detections"` // Full retained list, for per-segment analysis
	CreatedAt       dbh.IntTime                        `json:"createdAt"`
}
