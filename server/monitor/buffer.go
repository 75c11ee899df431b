package monitor

import (
	"sync"
	"time"

	"github.com/cyclopcam/wellmon/server/detect"
)

// DetectionBuffer accumulates detections per subject until they are flushed
// into a window score. Each subject has its own lock, so a flush for one
// subject never blocks appends for another.
type DetectionBuffer struct {
	lock     sync.RWMutex
	subjects map[string]*subjectBuffer
}

type subjectBuffer struct {
	lock      sync.Mutex
	events    []detect.Detection
	lastFlush time.Time
}

func NewDetectionBuffer() *DetectionBuffer {
	return &DetectionBuffer{
		subjects: map[string]*subjectBuffer{},
	}
}

// Append adds a detection for the given subject. The first append for a
// subject starts its flush clock.
func (b *DetectionBuffer) Append(subject string, det detect.Detection, now time.Time) {
	sb := b.subject(subject)
	sb.lock.Lock()
	defer sb.lock.Unlock()
	if sb.lastFlush.IsZero() {
		sb.lastFlush = now
	}
	sb.events = append(sb.events, det)
}

// Flush returns and clears the pending detections for subject, and restarts
// its flush clock. Returns nil if nothing is pending.
func (b *DetectionBuffer) Flush(subject string, now time.Time) []detect.Detection {
	sb := b.subject(subject)
	sb.lock.Lock()
	defer sb.lock.Unlock()
	if len(sb.events) == 0 {
		sb.lastFlush = now
		return nil
	}
	events := sb.events
	sb.events = nil
	sb.lastFlush = now
	return events
}

// HasPending returns true if subject has unflushed detections.
func (b *DetectionBuffer) HasPending(subject string) bool {
	sb := b.subject(subject)
	sb.lock.Lock()
	defer sb.lock.Unlock()
	return len(sb.events) != 0
}

// Pending returns a copy of the unflushed detections for subject.
func (b *DetectionBuffer) Pending(subject string) []detect.Detection {
	sb := b.subject(subject)
	sb.lock.Lock()
	defer sb.lock.Unlock()
	events := make([]detect.Detection, len(sb.events))
	copy(events, sb.events)
	return events
}

// LastFlush returns the time of subject's last flush, or the time of its
// first append if it has never been flushed. Zero if the subject is unknown.
func (b *DetectionBuffer) LastFlush(subject string) time.Time {
	b.lock.RLock()
	sb := b.subjects[subject]
	b.lock.RUnlock()
	if sb == nil {
		return time.Time{}
	}
	sb.lock.Lock()
	defer sb.lock.Unlock()
	return sb.lastFlush
}

// Subjects returns the subjects that have ever had a detection appended.
func (b *DetectionBuffer) Subjects() []string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	subjects := make([]string, 0, len(b.subjects))
	for s := range b.subjects {
		subjects = append(subjects, s)
	}
	return subjects
}

func (b *DetectionBuffer) subject(subject string) *subjectBuffer {
	b.lock.RLock()
	sb := b.subjects[subject]
	b.lock.RUnlock()
	if sb != nil {
		return sb
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if sb = b.subjects[subject]; sb == nil {
		sb = &subjectBuffer{}
		b.subjects[subject] = sb
	}
	return sb
}
