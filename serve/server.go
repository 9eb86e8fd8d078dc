package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

// Server is the read-only observer surface over a session store.
type Server struct {
	manager *session.Manager
	hub     *Hub
	logger  *Logger
	upgrade websocket.Upgrader
}

// NewServer creates an observer server over the given manager.
func NewServer(mgr *session.Manager, log *Logger) *Server {
	return &Server{
		manager: mgr,
		hub:     NewHub(log),
		logger:  log,
		upgrade: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context, addr string) error {
	go srv.hub.Run(ctx)
	srv.hub.StartLogPoller(ctx, srv.manager.Store, 200*time.Millisecond)

	httpSrv := &http.Server{Addr: addr, Handler: srv.routes()}
	srv.logger.Info("Observer server listening on " + addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// routes builds the observer mux.
func (srv *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", srv.handleList)
	mux.HandleFunc("GET /sessions/{id}", srv.handleSession)
	mux.HandleFunc("GET /sessions/{id}/score", srv.handleScore)
	mux.HandleFunc("GET /sessions/{id}/log", srv.handleLog)
	mux.HandleFunc("GET /ws", srv.handleWS)
	return mux
}

func (srv *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := srv.manager.Store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, ids)
}

func (srv *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s, ok := srv.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, s)
}

func (srv *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	s, ok := srv.loadSession(w, r)
	if !ok {
		return
	}
	defs, found := srv.manager.Scenarios[s.ScenarioID]
	if !found {
		http.Error(w, "scenario not loaded: "+s.ScenarioID, http.StatusInternalServerError)
		return
	}
	writeJSON(w, score.FullScore(defs, s))
}

func (srv *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	s, ok := srv.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.Log)
}

func (srv *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrade.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error("WebSocket upgrade failed: " + err.Error())
		return
	}
	client := NewClient(srv.hub, conn)
	client.Register()
	go client.WritePump()
	go client.ReadPump()
}

func (srv *Server) loadSession(w http.ResponseWriter, r *http.Request) (*types.SessionState, bool) {
	id := r.PathValue("id")
	s, err := srv.manager.Store.Load(id)
	if err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}
	return s, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
