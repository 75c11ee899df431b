package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/wellmon/server/camera"
	"github.com/cyclopcam/wellmon/server/configdb"
	"github.com/cyclopcam/wellmon/server/detect"
	"github.com/cyclopcam/wellmon/server/monitor"
	"github.com/cyclopcam/wellmon/server/scoredb"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Options is the startup configuration of the server.
type Options struct {
	ConfigDBFilename string
	ScoreDBFilename  string
	DetectorURL      string        // Base URL of the emotion detector sidecar
	DetectorTimeout  time.Duration // Zero means the detector client's default
}

type Server struct {
	Log      logs.Log
	ConfigDB *configdb.ConfigDB
	ScoreDB  *scoredb.ScoreDB
	Monitor  *monitor.Monitor

	cameras  *camera.Manager
	detector detect.Detector

	signalIn         chan os.Signal
	httpServer       *http.Server
	httpRouter       *httprouter.Router
	wsUpgrader       websocket.Upgrader
	ShutdownStarted  chan bool
	ShutdownComplete chan error
}

func NewServer(logger logs.Log, options Options) (*Server, error) {
	configDB, err := configdb.NewConfigDB(logger, options.ConfigDBFilename)
	if err != nil {
		return nil, err
	}
	scoreDB, err := scoredb.Open(logger, options.ScoreDBFilename)
	if err != nil {
		return nil, err
	}
	detector := detect.NewHTTPDetector(options.DetectorURL, options.DetectorTimeout)
	cameras := camera.NewManager(logger)

	s := &Server{
		Log:              logger,
		ConfigDB:         configDB,
		ScoreDB:          scoreDB,
		cameras:          cameras,
		detector:         detector,
		ShutdownStarted:  make(chan bool),
		ShutdownComplete: make(chan error, 1),
	}
	s.Monitor = monitor.NewMonitor(logger, &cameraPool{manager: cameras}, detector, configDB, scoreDB, monitor.DefaultOptions())
	s.setupHttpRoutes()
	return s, nil
}

// cameraPool exposes the camera manager to the monitor, translating the
// manager's sentinel errors into the monitor's.
type cameraPool struct {
	manager *camera.Manager
}

func (p *cameraPool) Acquire(settings configdb.CameraSettings) (monitor.Camera, error) {
	h, err := p.manager.Acquire(camera.Settings{
		Width:  settings.Width,
		Height: settings.Height,
		FPS:    settings.FPS,
	})
	if err != nil {
		if errors.Is(err, camera.ErrNoCamera) {
			return nil, monitor.ErrNoCamera
		}
		if errors.Is(err, camera.ErrCameraBusy) {
			return nil, monitor.ErrBusy
		}
		return nil, err
	}
	return h, nil
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v', shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	close(s.ShutdownStarted)
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	s.Log.Infof("Stopping monitor")
	s.Monitor.Close()
	s.detector.Close()
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP server shutdown error: %v", err)
		}
	}
	s.Log.Infof("Shutdown complete")
	s.Log.Close()
	s.ShutdownComplete <- nil
}
