package monitor

import (
	"time"

	"github.com/cyclopcam/wellmon/server/detect"
)

// Persistence is fire-and-forget: score writes go through a bounded queue
// serviced by a single goroutine, so a slow or broken store never stalls the
// frame loop or a stop call. Failed writes are logged and dropped.

type persistOp interface {
	apply(store Store) error
}

type opWindowScore struct {
	sessionID int64
	subject   string
	time      time.Time
	score     float64
	dominant  string
}

func (op opWindowScore) apply(store Store) error {
	return store.AddWindowScore(op.sessionID, op.subject, op.time, op.score, op.dominant)
}

type opSessionScore struct {
	sessionID int64
	subject   string
	score     float64
}

func (op opSessionScore) apply(store Store) error {
	return store.UpsertSessionScore(op.sessionID, op.subject, op.score)
}

type opCloseSession struct {
	sessionID int64
	status    string
	endTime   time.Time
}

func (op opCloseSession) apply(store Store) error {
	return store.CloseSession(op.sessionID, op.status, op.endTime)
}

type opSurveyResult struct {
	sessionID       int64
	subject         string
	avgScore        float64
	dominantEmotion string
	detections      []detect.Detection
}

func (op opSurveyResult) apply(store Store) error {
	return store.StoreSurveyResult(op.sessionID, op.subject, op.avgScore, op.dominantEmotion, op.detections)
}

// enqueue never blocks. If the queue is full we drop the write and warn,
// because stalling the frame loop is worse than losing one score.
func (m *Monitor) enqueue(op persistOp) {
	if m.persistClosed.Load() {
		return
	}
	select {
	case m.persistQueue <- op:
	default:
		m.log.Warnf("Persistence queue is full, dropping %T", op)
	}
}

// runPersist services the queue until it is closed, then exits.
func (m *Monitor) runPersist(store Store) {
	defer close(m.persistStopped)
	for op := range m.persistQueue {
		if err := op.apply(store); err != nil {
			m.log.Errorf("Failed to persist %T: %v", op, err)
		}
	}
}
