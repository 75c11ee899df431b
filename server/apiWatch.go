package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// httpMonitorWatch streams live detections over a websocket, one JSON
// message per detection, until the client goes away or the server shuts
// down. Watchers that can't keep up have detections dropped for them by the
// monitor, so a slow browser tab never stalls the frame loop.
func (s *Server) httpMonitorWatch(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpMonitorWatch websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	watcher := s.Monitor.AddWatcher()
	defer s.Monitor.RemoveWatcher(watcher)

	// Read from the websocket on its own thread, so the write loop below can
	// learn about a disconnect without ever blocking on a read.
	clientClosed := make(chan bool)
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.Log.Infof("Watcher connected from %v", r.RemoteAddr)
	for {
		select {
		case det := <-watcher:
			c.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.WriteJSON(det); err != nil {
				s.Log.Infof("Watcher write failed, disconnecting: %v", err)
				return
			}
		case <-clientClosed:
			s.Log.Infof("Watcher disconnected from %v", r.RemoteAddr)
			return
		case <-s.ShutdownStarted:
			c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		}
	}
}
