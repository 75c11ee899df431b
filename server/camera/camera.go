package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/wellmon/server/detect"
	"gocv.io/x/gocv"
)

// ErrNoCamera means every candidate device index failed to produce a frame.
// This is terminal for a start attempt; there is no retry loop at this layer.
var ErrNoCamera = errors.New("No camera available")

// ErrCameraBusy means the device is already owned by an active session.
var ErrCameraBusy = errors.New("Camera is already in use")

// Settings is read-only capture configuration, injected at acquire time.
type Settings struct {
	Width  int
	Height int
	FPS    int
}

// Manager owns the one physical capture device on this box.
// The deployment is fixed hardware: an external webcam on index 1, with the
// built-in camera on index 0 as fallback. We probe in that order, rather than
// doing general device discovery.
type Manager struct {
	log         logs.Log
	probeOrder  []int
	settleDelay time.Duration

	mu     sync.Mutex
	active *Handle
}

func NewManager(log logs.Log) *Manager {
	return &Manager{
		log:         log,
		probeOrder:  []int{1, 0},
		settleDelay: 100 * time.Millisecond,
	}
}

// Acquire probes the candidate device indices and returns a handle to the
// first one that opens and produces a frame. A device that opens but cannot
// deliver a frame is released and skipped. Returns ErrNoCamera when every
// candidate fails, and ErrCameraBusy if a previous handle has not been
// released yet.
func (m *Manager) Acquire(settings Settings) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ErrCameraBusy
	}
	for _, index := range m.probeOrder {
		h, err := m.tryOpen(index, settings)
		if err != nil {
			m.log.Infof("Camera index %v not usable: %v", index, err)
			continue
		}
		m.log.Infof("Acquired camera on index %v", index)
		m.active = h
		return h, nil
	}
	m.log.Errorf("No cameras available (probed indices %v)", m.probeOrder)
	return nil, ErrNoCamera
}

// Release returns the device to the manager. Idempotent, and safe to call
// with a nil or already-released handle.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	h.close()
	m.mu.Lock()
	if m.active == h {
		m.active = nil
	}
	m.mu.Unlock()
}

func (m *Manager) tryOpen(index int, settings Settings) (*Handle, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, err
	}
	// Give the device a moment to initialize before the verification read.
	time.Sleep(m.settleDelay)
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("Device %v failed to open", index)
	}
	if settings.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	}
	if settings.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	}
	if settings.FPS > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(settings.FPS))
	}
	h := &Handle{
		owner: m,
		index: index,
		cap:   cap,
		mat:   gocv.NewMat(),
	}
	// Devices will sometimes open and then fail to deliver frames, so we only
	// accept a device after reading one real frame from it.
	if _, err := h.ReadFrame(); err != nil {
		h.close()
		return nil, fmt.Errorf("Device %v opened but is not delivering frames: %w", index, err)
	}
	return h, nil
}

// Handle is exclusive ownership of an opened capture device.
type Handle struct {
	owner *Manager
	index int

	mu       sync.Mutex
	cap      *gocv.VideoCapture
	mat      gocv.Mat
	released bool
}

// Index is the device index this handle was opened on.
func (h *Handle) Index() int {
	return h.index
}

// ReadFrame reads one frame from the device and returns it JPEG encoded.
func (h *Handle) ReadFrame() (*detect.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, fmt.Errorf("Camera handle %v is released", h.index)
	}
	if !h.cap.Read(&h.mat) || h.mat.Empty() {
		return nil, fmt.Errorf("Failed to read frame from device %v", h.index)
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, h.mat)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode frame from device %v: %w", h.index, err)
	}
	defer buf.Close()
	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())
	return &detect.Frame{
		Width:  h.mat.Cols(),
		Height: h.mat.Rows(),
		PTS:    time.Now(),
		JPEG:   jpeg,
	}, nil
}

// Release the capture device and return it to the manager. Idempotent.
func (h *Handle) Release() {
	h.owner.Release(h)
}

func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.cap.Close()
	h.mat.Close()
}
