package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/wellmon/server/monitor"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// checkMonitor translates the monitor's sentinel errors into HTTP statuses.
// No camera is a service problem (503), a session conflict is the caller's
// problem (409).
func checkMonitor(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, monitor.ErrNoCamera) {
		www.Panic(http.StatusServiceUnavailable, err.Error())
	}
	if errors.Is(err, monitor.ErrBusy) || errors.Is(err, monitor.ErrNotRunning) {
		www.Panic(http.StatusConflict, err.Error())
	}
	www.Check(err)
}

func (s *Server) httpMonitorStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Monitor.Status())
}

func (s *Server) httpMonitorGeneralStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	checkMonitor(s.Monitor.StartGeneral())
	www.SendID(w, s.Monitor.Status().SessionID)
}

func (s *Server) httpMonitorGeneralStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	checkMonitor(s.Monitor.StopGeneral())
	www.SendOK(w)
}

func (s *Server) httpMonitorSurveyStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	subject := www.RequiredQueryValue(r, "subject")
	checkMonitor(s.Monitor.StartSurvey(subject))
	www.SendID(w, s.Monitor.Status().SessionID)
}

func (s *Server) httpMonitorSurveyStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	result, err := s.Monitor.StopSurvey()
	checkMonitor(err)
	www.SendJSON(w, result)
}

func (s *Server) httpMonitorConfigureGeneral(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	checkMonitor(s.Monitor.ConfigureGeneral())
	www.SendOK(w)
}

func (s *Server) httpMonitorConfigureSurvey(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	subject := www.RequiredQueryValue(r, "subject")
	checkMonitor(s.Monitor.ConfigureSurvey(subject))
	www.SendOK(w)
}

func (s *Server) httpMonitorCleanup(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Monitor.ForceCleanup()
	www.SendOK(w)
}

// httpMonitorSurveyScore aggregates the active survey's detections inside a
// time range, given as second offsets from session start.
func (s *Server) httpMonitorSurveyScore(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	startSec := www.RequiredQueryInt(r, "startSecond")
	endSec := www.RequiredQueryInt(r, "endSecond")
	if endSec <= startSec {
		www.PanicBadRequestf("endSecond must be greater than startSecond")
	}
	score, err := s.Monitor.SurveyScoreForRange(time.Duration(startSec)*time.Second, time.Duration(endSec)*time.Second)
	checkMonitor(err)
	type scoreJSON struct {
		Score float64 `json:"score"`
	}
	www.SendJSON(w, &scoreJSON{Score: score})
}

func (s *Server) httpSessionGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := www.ParseID(params.ByName("id"))
	ses, err := s.ScoreDB.GetSession(id)
	www.Check(err)
	www.SendJSON(w, ses)
}

func (s *Server) httpSessionWindows(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := www.ParseID(params.ByName("id"))
	scores, err := s.ScoreDB.WindowScores(id)
	www.Check(err)
	www.SendJSON(w, scores)
}

func (s *Server) httpSessionScores(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := www.ParseID(params.ByName("id"))
	scores, err := s.ScoreDB.SessionScores(id)
	www.Check(err)
	www.SendJSON(w, scores)
}

func (s *Server) httpSessionSurveyResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := www.ParseID(params.ByName("id"))
	result, err := s.ScoreDB.GetSurveyResult(id)
	www.Check(err)
	www.SendJSON(w, result)
}
