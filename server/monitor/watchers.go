package monitor

import (
	"time"

	"github.com/cyclopcam/wellmon/pkg/gen"
	"github.com/cyclopcam/wellmon/server/detect"
)

// WatcherChannelSize is the size of the channel that we use to send
// detections to watchers.
const WatcherChannelSize = 100

// LiveDetection is one detection as delivered to live watchers.
type LiveDetection struct {
	SessionID int64       `json:"sessionId"`
	Mode      string      `json:"mode"`
	Subject   string      `json:"subject"`
	Emotion   string      `json:"emotion"`
	Score     float64     `json:"score"`
	Box       detect.Rect `json:"box"`
	Time      time.Time   `json:"time"`
}

// AddWatcher registers a channel that will receive every detection of the
// active session, until removed.
func (m *Monitor) AddWatcher() chan *LiveDetection {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *LiveDetection, WatcherChannelSize)
	m.watchers = append(m.watchers, ch)
	return ch
}

func (m *Monitor) RemoveWatcher(ch chan *LiveDetection) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = gen.DeleteFromSliceUnordered(m.watchers, i)
			return
		}
	}
	m.log.Warnf("RemoveWatcher: watcher not found")
}

// sendToWatchers delivers a detection to every watcher. If a watcher's
// channel is nearly full we drop the detection for that watcher, because a
// slow consumer must not be allowed to stall the frame loop.
func (m *Monitor) sendToWatchers(det *LiveDetection) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for _, w := range m.watchers {
		if len(w) >= (cap(w)*9)/10 {
			m.log.Warnf("Watcher channel is falling behind, dropping detection")
			continue
		}
		w <- det
	}
}
