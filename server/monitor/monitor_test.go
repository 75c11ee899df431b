package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/wellmon/server/configdb"
	"github.com/cyclopcam/wellmon/server/detect"
	"github.com/cyclopcam/wellmon/server/scoredb"
	"github.com/stretchr/testify/require"
)

type fakeCamera struct {
	pool     *fakePool
	released atomic.Bool
}

func (c *fakeCamera) ReadFrame() (*detect.Frame, error) {
	return &detect.Frame{Width: 640, Height: 480, JPEG: []byte{0xff, 0xd8}}, nil
}

func (c *fakeCamera) Release() {
	if c.released.Swap(true) {
		return
	}
	c.pool.lock.Lock()
	c.pool.active = nil
	c.pool.lock.Unlock()
}

type fakePool struct {
	lock     sync.Mutex
	noCamera bool
	acquires int
	active   *fakeCamera
}

func (p *fakePool) Acquire(settings configdb.CameraSettings) (Camera, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.noCamera {
		return nil, ErrNoCamera
	}
	if p.active != nil {
		return nil, ErrBusy
	}
	p.acquires++
	p.active = &fakeCamera{pool: p}
	return p.active, nil
}

type fakeDetector struct {
	detect func(subject string) *detect.Detection
}

func (d *fakeDetector) DetectGeneral(frame *detect.Frame) (*detect.Detection, error) {
	return d.detect(""), nil
}

func (d *fakeDetector) DetectForSubject(frame *detect.Frame, subject string) (*detect.Detection, error) {
	return d.detect(subject), nil
}

func (d *fakeDetector) Close() {}

type fakeStore struct {
	lock          sync.Mutex
	nextID        int64
	sessions      map[int64]*scoredb.MonitoringSession
	windowScores  []scoredb.WindowScore
	sessionScores []scoredb.SessionScore
	surveyResults []scoredb.SurveyResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[int64]*scoredb.MonitoringSession{}}
}

func (s *fakeStore) CreateSession(mode, subject string, startTime time.Time) (*scoredb.MonitoringSession, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.nextID++
	ses := &scoredb.MonitoringSession{Mode: mode, Subject: subject, Status: scoredb.SessionStatusRunning}
	ses.ID = s.nextID
	s.sessions[ses.ID] = ses
	return ses, nil
}

func (s *fakeStore) CloseSession(sessionID int64, status string, endTime time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions[sessionID].Status = status
	return nil
}

func (s *fakeStore) AddWindowScore(sessionID int64, subject string, t time.Time, score float64, dominantEmotion string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.windowScores = append(s.windowScores, scoredb.WindowScore{SessionID: sessionID, Subject: subject, Score: score, DominantEmotion: dominantEmotion})
	return nil
}

func (s *fakeStore) UpsertSessionScore(sessionID int64, subject string, score float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessionScores = append(s.sessionScores, scoredb.SessionScore{SessionID: sessionID, Subject: subject, Score: score})
	return nil
}

func (s *fakeStore) StoreSurveyResult(sessionID int64, subject string, avgScore float64, dominantEmotion string, detections []detect.Detection) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.surveyResults = append(s.surveyResults, scoredb.SurveyResult{SessionID: sessionID, Subject: subject, AvgScore: avgScore, DominantEmotion: dominantEmotion, DetectionCount: len(detections)})
	return nil
}

func (s *fakeStore) sessionStatus(id int64) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if ses := s.sessions[id]; ses != nil {
		return ses.Status
	}
	return ""
}

func (s *fakeStore) nWindowScores() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.windowScores)
}

func (s *fakeStore) nSessions() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.sessions)
}

type fixture struct {
	pool     *fakePool
	detector *fakeDetector
	store    *fakeStore
	settings configdb.CameraSettings
	mon      *Monitor
}

func (f *fixture) GetCameraSettings() configdb.CameraSettings {
	return f.settings
}

func newFixture(t *testing.T, detectFn func(subject string) *detect.Detection) *fixture {
	f := &fixture{
		pool:     &fakePool{},
		detector: &fakeDetector{detect: detectFn},
		store:    newFakeStore(),
		settings: configdb.CameraSettings{Width: 640, Height: 480, FPS: 30, DetectionInterval: 1},
	}
	opts := Options{
		FlushInterval: 20 * time.Millisecond,
		FrameDelay:    time.Millisecond,
		JoinTimeout:   time.Second,
		QueueSize:     256,
	}
	f.mon = NewMonitor(logs.NewTestingLog(t), f.pool, f.detector, f, f.store, opts)
	t.Cleanup(f.mon.Close)
	return f
}

func alwaysDetect(emotion string, score float64) func(subject string) *detect.Detection {
	return func(subject string) *detect.Detection {
		s := subject
		if s == "" {
			s = "s1"
		}
		return &detect.Detection{Subject: s, Emotion: emotion, Score: score}
	}
}

func neverDetect(subject string) *detect.Detection {
	return nil
}

func TestStartRejectsSecondSession(t *testing.T) {
	f := newFixture(t, alwaysDetect("Neutral", 0.45))
	require.NoError(t, f.mon.StartGeneral())
	require.ErrorIs(t, f.mon.StartGeneral(), ErrBusy)
	require.ErrorIs(t, f.mon.StartSurvey("s9"), ErrBusy)
	require.Equal(t, "running", f.mon.Status().State)
	require.NoError(t, f.mon.StopGeneral())
	require.Equal(t, "idle", f.mon.Status().State)
}

func TestStartWithoutCamera(t *testing.T) {
	f := newFixture(t, alwaysDetect("Neutral", 0.45))
	f.pool.noCamera = true
	require.ErrorIs(t, f.mon.StartGeneral(), ErrNoCamera)
	require.Equal(t, "idle", f.mon.Status().State)
	require.Equal(t, 0, f.store.nSessions(), "no session record when the camera is missing")
}

func TestGeneralSessionFlow(t *testing.T) {
	f := newFixture(t, alwaysDetect("Sad", 0.8))
	require.NoError(t, f.mon.StartGeneral())

	require.Eventually(t, func() bool {
		return f.store.nWindowScores() >= 2
	}, 5*time.Second, 5*time.Millisecond, "window scores must flow while running")

	require.NoError(t, f.mon.StopGeneral())

	require.Eventually(t, func() bool {
		f.store.lock.Lock()
		defer f.store.lock.Unlock()
		return len(f.store.sessionScores) == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.store.lock.Lock()
	ss := f.store.sessionScores[0]
	ws := f.store.windowScores[0]
	f.store.lock.Unlock()
	require.Equal(t, "s1", ss.Subject)
	require.InDelta(t, 0.8, ss.Score, 1e-9, "uniform detections must average to themselves")
	require.Equal(t, "Sad", ws.DominantEmotion)
	require.Eventually(t, func() bool {
		return f.store.sessionStatus(ss.SessionID) == scoredb.SessionStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSurveySession(t *testing.T) {
	f := newFixture(t, alwaysDetect("Fear", 0.9))
	require.NoError(t, f.mon.StartSurvey("s7"))

	require.Eventually(t, func() bool {
		return f.store.nWindowScores() >= 1
	}, 5*time.Second, 5*time.Millisecond)

	result, err := f.mon.StopSurvey()
	require.NoError(t, err)
	require.Equal(t, "s7", result.Subject)
	require.False(t, result.NoDetection)
	require.Greater(t, result.DetectionCount, 0)
	require.Equal(t, "Fear", result.DominantEmotion)
	require.InDelta(t, 0.9, result.AvgScore, 1e-9)

	require.Eventually(t, func() bool {
		f.store.lock.Lock()
		defer f.store.lock.Unlock()
		return len(f.store.surveyResults) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSurveyWithZeroDetections(t *testing.T) {
	f := newFixture(t, neverDetect)
	require.NoError(t, f.mon.StartSurvey("s7"))
	time.Sleep(30 * time.Millisecond)

	result, err := f.mon.StopSurvey()
	require.NoError(t, err, "an empty survey is a valid outcome, not an error")
	require.True(t, result.NoDetection)
	require.Equal(t, 0, result.DetectionCount)
	require.Equal(t, 0.0, result.AvgScore)
	require.Equal(t, "No Detection", result.DominantEmotion)
}

func TestStopWrongMode(t *testing.T) {
	f := newFixture(t, neverDetect)
	require.NoError(t, f.mon.StartGeneral())
	_, err := f.mon.StopSurvey()
	require.ErrorIs(t, err, ErrNotRunning)
	require.NoError(t, f.mon.StopGeneral())
	require.ErrorIs(t, f.mon.StopGeneral(), ErrNotRunning)
}

func TestCameraReleasedAfterStop(t *testing.T) {
	f := newFixture(t, neverDetect)
	require.NoError(t, f.mon.StartGeneral())
	require.NoError(t, f.mon.StopGeneral())

	// The pool refuses a second Acquire while a camera is held, so a
	// successful restart proves the first handle was released.
	require.NoError(t, f.mon.StartGeneral())
	require.NoError(t, f.mon.StopGeneral())
	require.Equal(t, 2, f.pool.acquires)
}

func TestForceCleanup(t *testing.T) {
	f := newFixture(t, alwaysDetect("Neutral", 0.45))
	require.NoError(t, f.mon.StartSurvey("s3"))
	f.mon.ForceCleanup()
	require.Equal(t, "idle", f.mon.Status().State)

	require.Eventually(t, func() bool {
		return f.store.sessionStatus(1) == scoredb.SessionStatusPartial
	}, 2*time.Second, 5*time.Millisecond)

	// Cleanup released the camera, so a fresh session can start
	require.NoError(t, f.mon.StartGeneral())
	require.NoError(t, f.mon.StopGeneral())
}

func TestConfigureRequiresIdleAndCamera(t *testing.T) {
	f := newFixture(t, neverDetect)
	require.NoError(t, f.mon.ConfigureGeneral())
	require.NoError(t, f.mon.ConfigureSurvey("s1"))

	require.NoError(t, f.mon.StartGeneral())
	require.ErrorIs(t, f.mon.ConfigureGeneral(), ErrBusy)
	require.NoError(t, f.mon.StopGeneral())

	f.pool.noCamera = true
	require.ErrorIs(t, f.mon.ConfigureGeneral(), ErrNoCamera)
}

func TestWatchersReceiveDetections(t *testing.T) {
	f := newFixture(t, alwaysDetect("Happy", 0.6))
	ch := f.mon.AddWatcher()
	defer f.mon.RemoveWatcher(ch)

	require.NoError(t, f.mon.StartGeneral())
	select {
	case det := <-ch:
		require.Equal(t, "Happy", det.Emotion)
		require.Equal(t, "s1", det.Subject)
	case <-time.After(5 * time.Second):
		t.Fatal("no live detection arrived")
	}
	require.NoError(t, f.mon.StopGeneral())
}

func TestSurveyScoreForRange(t *testing.T) {
	f := newFixture(t, alwaysDetect("Sad", 0.9))
	require.NoError(t, f.mon.StartSurvey("s2"))

	require.Eventually(t, func() bool {
		score, err := f.mon.SurveyScoreForRange(0, time.Minute)
		return err == nil && score > 0
	}, 5*time.Second, 5*time.Millisecond)

	// A window in the future holds no detections
	score, err := f.mon.SurveyScoreForRange(time.Hour, 2*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0.0, score)

	_, _ = f.mon.StopSurvey()
	_, err = f.mon.SurveyScoreForRange(0, time.Minute)
	require.ErrorIs(t, err, ErrNotRunning)
}
