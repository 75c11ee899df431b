package server

import (
	"net/http"

	"github.com/cyclopcam/wellmon/server/configdb"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpSettingsGetCamera(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	settings := s.ConfigDB.GetCameraSettings()
	www.SendJSON(w, &settings)
}

func (s *Server) httpSettingsSetCamera(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	settings := configdb.CameraSettings{}
	www.ReadJSON(w, r, &settings, 1024*1024)
	if settings.Width <= 0 || settings.Height <= 0 || settings.FPS <= 0 || settings.DetectionInterval <= 0 {
		www.PanicBadRequestf("Camera settings must all be positive")
	}
	www.Check(s.ConfigDB.SetCameraSettings(settings))
	// Settings are read at session start, so an active session keeps its
	// current configuration until restarted.
	www.SendOK(w)
}

func (s *Server) httpSettingsGetWeights(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	weights := s.ConfigDB.GetScoreWeights()
	www.SendJSON(w, &weights)
}

func (s *Server) httpSettingsSetWeights(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	weights := configdb.ScoreWeights{}
	www.ReadJSON(w, r, &weights, 1024*1024)
	if !weights.IsValid() {
		www.PanicBadRequestf("Score weights must be non-negative and sum to more than zero")
	}
	www.Check(s.ConfigDB.SetScoreWeights(weights))
	www.SendOK(w)
}
