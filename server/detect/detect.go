package detect

import (
	"time"
)

// detect specifies the boundary to the external face identification and
// emotion classification capability. How a frame turns into a
// (subject, emotion, score) tuple is not our concern; we only define the
// wire types and the interface that the monitoring loop consumes.

// Frame is one captured video frame, JPEG encoded by the camera layer.
type Frame struct {
	Width  int
	Height int
	PTS    time.Time // Capture time
	JPEG   []byte
}

// Rect is a face bounding box in frame pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one observation of a subject in a frame.
// Immutable once created.
type Detection struct {
	Subject string    `json:"subject"` // Personnel identifier (force ID)
	Emotion string    `json:"emotion"` // Classifier label, eg "Neutral", "Sad"
	Score   float64   `json:"score"`   // Emotion severity score, 0..1
	Box     Rect      `json:"box"`     // Face region within the frame
	Time    time.Time `json:"time"`    // When the frame was captured
}

// Detector is the external ML capability.
// Both methods return (nil, nil) when no face was found in the frame.
// Implementations must bound their own blocking time; the monitoring loop
// treats any error as "no detection this frame".
type Detector interface {
	// DetectGeneral identifies the subject and classifies their emotion.
	DetectGeneral(frame *Frame) (*Detection, error)

	// DetectForSubject classifies emotion only, attributing the result to a
	// pre-authenticated subject. No identification is performed.
	DetectForSubject(frame *Frame, subject string) (*Detection, error)

	Close()
}
