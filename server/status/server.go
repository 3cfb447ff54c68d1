package status

import (
	"context"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/securewatch/sentinel/server/eventlog"
	"github.com/securewatch/sentinel/server/www"
)

// Server is the diagnostics HTTP API of one worker: live counters, recent
// episodes, and a liveness probe. It is read-only and unauthenticated, meant
// for operators and orchestration, not for the public internet.
type Server struct {
	log      logs.Log
	tracker  *Tracker
	journal  *eventlog.EventLog // nil when journaling is disabled
	cameraID string
	mode     string
	server   *http.Server
}

func NewServer(log logs.Log, tracker *Tracker, journal *eventlog.EventLog, cameraID, mode string) *Server {
	return &Server{
		log:      log,
		tracker:  tracker,
		journal:  journal,
		cameraID: cameraID,
		mode:     mode,
	}
}

// ListenAndServe blocks until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	router := httprouter.New()
	www.Handle(s.log, router, "GET", "/api/status", s.getStatus)
	www.Handle(s.log, router, "GET", "/api/events/recent", s.getRecentEvents)
	www.Handle(s.log, router, "GET", "/api/liveness", s.getLiveness)
	s.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	s.log.Infof("Status API listening on %v", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	snap := s.tracker.Snapshot()
	www.SendJSON(w, map[string]interface{}{
		"cameraID": s.cameraID,
		"mode":     s.mode,
		"status":   snap,
	})
}

// Recent episodes. Served from the journal when we have one, so the list
// survives restarts; otherwise from the in-memory ring.
func (s *Server) getRecentEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if s.journal != nil {
		eps, err := s.journal.RecentEpisodes(limit)
		www.Check(err)
		www.SendJSON(w, eps)
		return
	}
	recent := s.tracker.RecentEpisodes()
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	www.SendJSON(w, recent)
}

func (s *Server) getLiveness(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendText(w, "ok")
}
