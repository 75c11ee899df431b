package monitor

import (
	"time"

	"github.com/cyclopcam/wellmon/server/detect"
)

// How long to back off after a failed frame read, and the minimum interval
// between logged occurrences of a repeating error.
const (
	readErrorBackoff  = 250 * time.Millisecond
	errorLogThrottle  = 15 * time.Second
	generalSubjectKey = "general"
)

// runWorker is the frame loop of one session. It exits when mustStop is set,
// and closes workerStopped on the way out.
func (m *Monitor) runWorker(ses *session) {
	defer close(ses.workerStopped)

	interval := ses.settings.DetectionInterval
	if interval < 1 {
		interval = 1
	}
	frameCount := 0
	lastReadErrAt := time.Time{}
	lastDetectErrAt := time.Time{}

	for !ses.mustStop.Load() {
		frame, err := ses.cam.ReadFrame()
		if err != nil {
			if time.Since(lastReadErrAt) > errorLogThrottle {
				lastReadErrAt = time.Now()
				m.log.Errorf("Failed to read frame in session %v: %v", ses.id, err)
			}
			time.Sleep(readErrorBackoff)
			continue
		}
		frameCount++
		if frameCount%interval == 0 {
			now := time.Now()
			det, err := m.runDetector(ses, frame)
			if err != nil {
				// A failed detection is the same as no detection.
				if time.Since(lastDetectErrAt) > errorLogThrottle {
					lastDetectErrAt = time.Now()
					m.log.Errorf("Detector failed in session %v: %v", ses.id, err)
				}
			} else if det != nil {
				det.Time = now
				subject := m.recordDetection(ses, det)
				m.maybeFlush(ses, subject, now)
			}
		}
		time.Sleep(m.opts.FrameDelay)
	}
}

func (m *Monitor) runDetector(ses *session, frame *detect.Frame) (*detect.Detection, error) {
	if ses.survey != nil {
		return m.detector.DetectForSubject(frame, ses.survey.subject)
	}
	return m.detector.DetectGeneral(frame)
}

// recordDetection buffers the detection, retains it for surveys, and feeds
// live watchers. Returns the buffer key for the detection's subject.
func (m *Monitor) recordDetection(ses *session, det *detect.Detection) string {
	subject := det.Subject
	if subject == "" {
		subject = generalSubjectKey
	}
	ses.buffer.Append(subject, *det, det.Time)
	if ses.survey != nil {
		sv := ses.survey
		sv.retainedLock.Lock()
		sv.retained = append(sv.retained, *det)
		sv.retainedLock.Unlock()
	}
	m.sendToWatchers(&LiveDetection{
		SessionID: ses.id,
		Mode:      ses.mode,
		Subject:   subject,
		Emotion:   det.Emotion,
		Score:     det.Score,
		Box:       det.Box,
		Time:      det.Time,
	})
	return subject
}

// maybeFlush reduces the subject's buffered detections to one window score
// if its flush interval has elapsed.
func (m *Monitor) maybeFlush(ses *session, subject string, now time.Time) {
	last := ses.buffer.LastFlush(subject)
	if last.IsZero() || now.Sub(last) < m.opts.FlushInterval {
		return
	}
	m.flushSubject(ses, subject, now)
}

// flushSubject unconditionally flushes the subject's pending detections into
// a window score, recording it both in the session (for the end-of-session
// average) and in the persistence queue.
func (m *Monitor) flushSubject(ses *session, subject string, now time.Time) {
	events := ses.buffer.Flush(subject, now)
	if len(events) == 0 {
		return
	}
	score := PeakWeightedAverage(eventScores(events))
	dominant := DominantEmotion(events)

	ses.windowsLock.Lock()
	ses.windows[subject] = append(ses.windows[subject], score)
	ses.windowsLock.Unlock()

	m.enqueue(opWindowScore{
		sessionID: ses.id,
		subject:   subject,
		time:      now,
		score:     score,
		dominant:  dominant,
	})
	m.log.Debugf("Window score for %v in session %v: %.3f (%v, %v events)", subject, ses.id, score, dominant, len(events))
}
