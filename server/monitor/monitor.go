package monitor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/wellmon/pkg/gen"
	"github.com/cyclopcam/wellmon/server/configdb"
	"github.com/cyclopcam/wellmon/server/detect"
	"github.com/cyclopcam/wellmon/server/scoredb"
)

var (
	// ErrNoCamera means no capture device could be acquired.
	ErrNoCamera = errors.New("No camera available")
	// ErrBusy means a monitoring session is already active.
	ErrBusy = errors.New("A monitoring session is already running")
	// ErrNotRunning means the requested session kind is not active.
	ErrNotRunning = errors.New("No such monitoring session is running")
)

// Camera is a capture device that the monitor owns exclusively for the
// lifetime of a session.
type Camera interface {
	ReadFrame() (*detect.Frame, error)
	Release()
}

// CameraPool hands out capture devices. Acquire must fail with ErrNoCamera
// when no device exists, and must refuse to double-allocate.
type CameraPool interface {
	Acquire(settings configdb.CameraSettings) (Camera, error)
}

// SettingsSource provides the camera settings to use when a session starts.
// *configdb.ConfigDB satisfies this.
type SettingsSource interface {
	GetCameraSettings() configdb.CameraSettings
}

// Store is where session records and scores end up.
// *scoredb.ScoreDB satisfies this.
type Store interface {
	CreateSession(mode, subject string, startTime time.Time) (*scoredb.MonitoringSession, error)
	CloseSession(sessionID int64, status string, endTime time.Time) error
	AddWindowScore(sessionID int64, subject string, t time.Time, score float64, dominantEmotion string) error
	UpsertSessionScore(sessionID int64, subject string, score float64) error
	StoreSurveyResult(sessionID int64, subject string, avgScore float64, dominantEmotion string, detections []detect.Detection) error
}

// Options tune the monitor loop. Zero values are replaced by defaults.
type Options struct {
	FlushInterval time.Duration // How often per-subject detections are reduced to a window score
	FrameDelay    time.Duration // Pause between frame reads
	JoinTimeout   time.Duration // How long Stop waits for the worker before proceeding anyway
	QueueSize     int           // Capacity of the persistence queue
}

func DefaultOptions() Options {
	return Options{
		FlushInterval: 3 * time.Second,
		FrameDelay:    100 * time.Millisecond,
		JoinTimeout:   2 * time.Second,
		QueueSize:     64,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FlushInterval <= 0 {
		o.FlushInterval = def.FlushInterval
	}
	if o.FrameDelay <= 0 {
		o.FrameDelay = def.FrameDelay
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = def.JoinTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = def.QueueSize
	}
	return o
}

type monitorState int

const (
	stateIdle monitorState = iota
	stateStarting
	stateRunning
	stateStopping
)

func (s monitorState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	}
	return "unknown"
}

// surveyState holds the fields that only exist for a survey session.
type surveyState struct {
	subject      string
	retainedLock sync.Mutex
	retained     []detect.Detection // Every detection of the session, for the end-of-survey aggregate
}

// session is the state of one active monitoring run. It exists only between
// a successful Start and the end of the matching Stop.
type session struct {
	id        int64
	mode      string // scoredb.ModeGeneral or scoredb.ModeSurvey
	startTime time.Time
	settings  configdb.CameraSettings
	cam       Camera
	buffer    *DetectionBuffer

	mustStop      atomic.Bool
	workerStopped chan bool

	windowsLock sync.Mutex
	windows     map[string][]float64 // Flushed window scores per subject, for the end-of-session average

	survey *surveyState // nil for a general session
}

// Monitor runs at most one camera session at a time, feeding frames through
// a detector, buffering detections per subject, and periodically reducing
// them to window scores.
type Monitor struct {
	log      logs.Log
	pool     CameraPool
	detector detect.Detector
	settings SettingsSource
	storeRef Store
	opts     Options

	persistQueue   chan persistOp
	persistStopped chan bool
	persistClosed  atomic.Bool

	lock    sync.Mutex
	state   monitorState
	current *session

	watchersLock sync.Mutex
	watchers     []chan *LiveDetection
}

// NewMonitor creates a monitor and starts its persistence worker.
// Call Close when done.
func NewMonitor(logger logs.Log, pool CameraPool, detector detect.Detector, settings SettingsSource, store Store, opts Options) *Monitor {
	opts = opts.withDefaults()
	m := &Monitor{
		log:            logger,
		pool:           pool,
		detector:       detector,
		settings:       settings,
		storeRef:       store,
		opts:           opts,
		persistQueue:   make(chan persistOp, opts.QueueSize),
		persistStopped: make(chan bool),
	}
	go m.runPersist(store)
	return m
}

// StartGeneral begins an unattended full-frame monitoring session.
func (m *Monitor) StartGeneral() error {
	return m.start(scoredb.ModeGeneral, "")
}

// StartSurvey begins a session dedicated to one subject. Every detection is
// retained for the end-of-survey aggregate.
func (m *Monitor) StartSurvey(subject string) error {
	if subject == "" {
		return fmt.Errorf("Survey monitoring needs a subject")
	}
	return m.start(scoredb.ModeSurvey, subject)
}

// ConfigureGeneral validates that a general session could start right now.
// It acquires and immediately releases a camera, so callers can surface
// camera problems before committing to a session.
func (m *Monitor) ConfigureGeneral() error {
	return m.configure()
}

// ConfigureSurvey is ConfigureGeneral for survey mode.
func (m *Monitor) ConfigureSurvey(subject string) error {
	if subject == "" {
		return fmt.Errorf("Survey monitoring needs a subject")
	}
	return m.configure()
}

func (m *Monitor) configure() error {
	m.lock.Lock()
	if m.state != stateIdle {
		m.lock.Unlock()
		return ErrBusy
	}
	m.lock.Unlock()
	cam, err := m.pool.Acquire(m.settings.GetCameraSettings())
	if err != nil {
		return err
	}
	cam.Release()
	return nil
}

func (m *Monitor) start(mode, subject string) error {
	m.lock.Lock()
	if m.state != stateIdle {
		m.lock.Unlock()
		return ErrBusy
	}
	m.state = stateStarting
	m.lock.Unlock()

	fail := func(err error) error {
		m.lock.Lock()
		m.state = stateIdle
		m.current = nil
		m.lock.Unlock()
		return err
	}

	settings := m.settings.GetCameraSettings()
	cam, err := m.pool.Acquire(settings)
	if err != nil {
		return fail(err)
	}
	startTime := time.Now()
	rec, err := m.storeRef.CreateSession(mode, subject, startTime)
	if err != nil {
		cam.Release()
		return fail(fmt.Errorf("Failed to create session record: %w", err))
	}

	ses := &session{
		id:            rec.ID,
		mode:          mode,
		startTime:     startTime,
		settings:      settings,
		cam:           cam,
		buffer:        NewDetectionBuffer(),
		workerStopped: make(chan bool),
		windows:       map[string][]float64{},
	}
	if mode == scoredb.ModeSurvey {
		ses.survey = &surveyState{subject: subject}
	}

	m.lock.Lock()
	m.current = ses
	m.state = stateRunning
	m.lock.Unlock()

	m.log.Infof("Monitoring started (mode %v, session %v)", mode, ses.id)
	go m.runWorker(ses)
	return nil
}

// StopGeneral stops the active general session, flushes any pending
// detections, and records the per-subject session averages.
func (m *Monitor) StopGeneral() error {
	ses, err := m.beginStop(scoredb.ModeGeneral)
	if err != nil {
		return err
	}
	m.stopWorker(ses)
	m.flushAll(ses)

	ses.windowsLock.Lock()
	for subject, scores := range ses.windows {
		m.enqueue(opSessionScore{sessionID: ses.id, subject: subject, score: gen.Mean(scores)})
	}
	ses.windowsLock.Unlock()
	m.enqueue(opCloseSession{sessionID: ses.id, status: scoredb.SessionStatusCompleted, endTime: time.Now()})

	m.finishStop(ses)
	m.log.Infof("General monitoring stopped (session %v)", ses.id)
	return nil
}

// SurveyResult is the outcome of a survey session.
type SurveyResult struct {
	SessionID       int64              `json:"sessionId"`
	Subject         string             `json:"subject"`
	AvgScore        float64            `json:"avgScore"`
	DominantEmotion string             `json:"dominantEmotion"`
	DetectionCount  int                `json:"detectionCount"`
	NoDetection     bool               `json:"noDetection"`
	Detections      []detect.Detection `json:"detections,omitempty"`
}

// StopSurvey stops the active survey session and aggregates every retained
// detection into a single result. A survey in which the subject was never
// detected is not an error: the result carries NoDetection, a zero score and
// the "No Detection" label.
func (m *Monitor) StopSurvey() (*SurveyResult, error) {
	ses, err := m.beginStop(scoredb.ModeSurvey)
	if err != nil {
		return nil, err
	}
	m.stopWorker(ses)
	m.flushAll(ses)

	sv := ses.survey
	sv.retainedLock.Lock()
	retained := sv.retained
	sv.retained = nil
	sv.retainedLock.Unlock()

	result := &SurveyResult{
		SessionID:      ses.id,
		Subject:        sv.subject,
		DetectionCount: len(retained),
		Detections:     retained,
	}
	if len(retained) == 0 {
		result.NoDetection = true
		result.DominantEmotion = "No Detection"
	} else {
		result.AvgScore = PeakWeightedAverage(eventScores(retained))
		result.DominantEmotion = DominantEmotion(retained)
	}

	m.enqueue(opSurveyResult{
		sessionID:       ses.id,
		subject:         sv.subject,
		avgScore:        result.AvgScore,
		dominantEmotion: result.DominantEmotion,
		detections:      retained,
	})
	m.enqueue(opSessionScore{sessionID: ses.id, subject: sv.subject, score: result.AvgScore})
	m.enqueue(opCloseSession{sessionID: ses.id, status: scoredb.SessionStatusCompleted, endTime: time.Now()})

	m.finishStop(ses)
	m.log.Infof("Survey monitoring stopped (session %v, subject %v, %v detections)", ses.id, sv.subject, result.DetectionCount)
	return result, nil
}

func (m *Monitor) beginStop(mode string) (*session, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state != stateRunning || m.current == nil || m.current.mode != mode {
		return nil, ErrNotRunning
	}
	m.state = stateStopping
	return m.current, nil
}

// stopWorker asks the frame loop to exit and waits up to JoinTimeout.
// If the worker is wedged (eg a blocking camera read), we proceed anyway;
// the camera release below will unblock it eventually.
func (m *Monitor) stopWorker(ses *session) {
	ses.mustStop.Store(true)
	select {
	case <-ses.workerStopped:
	case <-time.After(m.opts.JoinTimeout):
		m.log.Warnf("Monitor worker did not stop within %v, proceeding with shutdown", m.opts.JoinTimeout)
	}
}

// flushAll reduces any remaining buffered detections to final window scores.
func (m *Monitor) flushAll(ses *session) {
	now := time.Now()
	for _, subject := range ses.buffer.Subjects() {
		m.flushSubject(ses, subject, now)
	}
}

func (m *Monitor) finishStop(ses *session) {
	ses.cam.Release()
	m.lock.Lock()
	m.current = nil
	m.state = stateIdle
	m.lock.Unlock()
}

// ForceCleanup unconditionally tears down whatever session is active, for
// recovery after a client crash. The session record is closed as partial,
// because buffered detections may not have made it to a window score.
func (m *Monitor) ForceCleanup() {
	m.lock.Lock()
	ses := m.current
	m.current = nil
	m.state = stateIdle
	m.lock.Unlock()
	if ses == nil {
		return
	}
	ses.mustStop.Store(true)
	select {
	case <-ses.workerStopped:
	case <-time.After(200 * time.Millisecond):
	}
	ses.cam.Release()
	m.enqueue(opCloseSession{sessionID: ses.id, status: scoredb.SessionStatusPartial, endTime: time.Now()})
	m.log.Warnf("Forced cleanup of monitoring session %v", ses.id)
}

// Status is a point-in-time snapshot of the monitor.
type Status struct {
	State     string    `json:"state"`
	Mode      string    `json:"mode,omitempty"`
	SessionID int64     `json:"sessionId,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	StartTime time.Time `json:"startTime,omitzero"`
}

func (m *Monitor) Status() Status {
	m.lock.Lock()
	defer m.lock.Unlock()
	st := Status{State: m.state.String()}
	if m.current != nil {
		st.Mode = m.current.mode
		st.SessionID = m.current.id
		st.StartTime = m.current.startTime
		if m.current.survey != nil {
			st.Subject = m.current.survey.subject
		}
	}
	return st
}

// SurveyScoreForRange aggregates the retained survey detections whose
// timestamps fall within [start, end) offsets from the session start.
// Only valid while a survey session is active.
func (m *Monitor) SurveyScoreForRange(start, end time.Duration) (float64, error) {
	m.lock.Lock()
	ses := m.current
	m.lock.Unlock()
	if ses == nil || ses.survey == nil {
		return 0, ErrNotRunning
	}
	sv := ses.survey
	lo := ses.startTime.Add(start)
	hi := ses.startTime.Add(end)
	sv.retainedLock.Lock()
	defer sv.retainedLock.Unlock()
	scores := []float64{}
	for _, ev := range sv.retained {
		if !ev.Time.Before(lo) && ev.Time.Before(hi) {
			scores = append(scores, ev.Score)
		}
	}
	return PeakWeightedAverage(scores), nil
}

// Close shuts down any active session and the persistence worker, draining
// queued writes first.
func (m *Monitor) Close() {
	m.ForceCleanup()
	m.persistClosed.Store(true)
	close(m.persistQueue)
	<-m.persistStopped
}
