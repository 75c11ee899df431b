package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, h httprouter.Handle) {
		www.Handle(s.Log, router, method, route, h)
	}

	handle("GET", "/api/ping", s.httpPing)

	handle("GET", "/api/monitor/status", s.httpMonitorStatus)
	handle("POST", "/api/monitor/general/start", s.httpMonitorGeneralStart)
	handle("POST", "/api/monitor/general/stop", s.httpMonitorGeneralStop)
	handle("POST", "/api/monitor/survey/start", s.httpMonitorSurveyStart)
	handle("POST", "/api/monitor/survey/stop", s.httpMonitorSurveyStop)
	handle("POST", "/api/monitor/configure/general", s.httpMonitorConfigureGeneral)
	handle("POST", "/api/monitor/configure/survey", s.httpMonitorConfigureSurvey)
	handle("POST", "/api/monitor/cleanup", s.httpMonitorCleanup)
	handle("GET", "/api/monitor/surveyScore", s.httpMonitorSurveyScore)

	handle("GET", "/api/session/:id", s.httpSessionGet)
	handle("GET", "/api/session/:id/windows", s.httpSessionWindows)
	handle("GET", "/api/session/:id/scores", s.httpSessionScores)
	handle("GET", "/api/session/:id/surveyResult", s.httpSessionSurveyResult)

	handle("GET", "/api/settings/camera", s.httpSettingsGetCamera)
	handle("POST", "/api/settings/camera", s.httpSettingsSetCamera)
	handle("GET", "/api/settings/weights", s.httpSettingsGetWeights)
	handle("POST", "/api/settings/weights", s.httpSettingsSetWeights)

	handle("GET", "/api/ws/monitor/watch", s.httpMonitorWatch)

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}
