package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/wellmon/server/detect"
	"github.com/stretchr/testify/require"
)

func TestDetectionBufferFlush(t *testing.T) {
	b := NewDetectionBuffer()
	t0 := time.Now()

	require.True(t, b.LastFlush("s1").IsZero())
	require.False(t, b.HasPending("s1"))
	require.Nil(t, b.Flush("s1", t0))

	// First append starts the flush clock
	b.Append("s1", detect.Detection{Subject: "s1", Emotion: "Neutral", Score: 0.45, Time: t0}, t0)
	require.Equal(t, t0, b.LastFlush("s1"))
	require.True(t, b.HasPending("s1"))

	b.Append("s1", detect.Detection{Subject: "s1", Emotion: "Sad", Score: 0.8, Time: t0}, t0.Add(time.Second))
	require.Equal(t, t0, b.LastFlush("s1"), "later appends must not move the flush clock")

	t1 := t0.Add(3 * time.Second)
	events := b.Flush("s1", t1)
	require.Len(t, events, 2)
	require.Equal(t, "Sad", events[1].Emotion)
	require.Equal(t, t1, b.LastFlush("s1"))
	require.False(t, b.HasPending("s1"))
	require.Nil(t, b.Flush("s1", t1))
}

func TestDetectionBufferSubjectIndependence(t *testing.T) {
	b := NewDetectionBuffer()
	now := time.Now()
	b.Append("a", detect.Detection{Subject: "a", Score: 0.5, Time: now}, now)
	b.Append("b", detect.Detection{Subject: "b", Score: 0.5, Time: now}, now)

	// Flushing one subject leaves the other untouched
	require.Len(t, b.Flush("a", now), 1)
	require.True(t, b.HasPending("b"))
	require.ElementsMatch(t, []string{"a", "b"}, b.Subjects())
}

func TestDetectionBufferConcurrentAppend(t *testing.T) {
	b := NewDetectionBuffer()
	now := time.Now()
	nSubjects := 4
	nEvents := 200

	wg := sync.WaitGroup{}
	for i := 0; i < nSubjects; i++ {
		subject := fmt.Sprintf("s%v", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < nEvents; j++ {
				b.Append(subject, detect.Detection{Subject: subject, Score: 0.5, Time: now}, now)
			}
		}()
	}
	// Flush one subject repeatedly while the others are being appended to
	flushed := 0
	done := make(chan bool)
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			flushed += len(b.Flush("s0", now))
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()
	<-done

	total := flushed + len(b.Pending("s0"))
	require.Equal(t, nEvents, total, "no s0 events may be lost across concurrent flushes")
	for i := 1; i < nSubjects; i++ {
		require.Len(t, b.Pending(fmt.Sprintf("s%v", i)), nEvents)
	}
}
