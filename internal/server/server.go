package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Server exposes the websocket endpoint and the admin HTTP surface.
type Server struct {
	addr     string
	logger   *log.Logger
	service  *Service
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer wires the HTTP layer around a service.
func NewServer(addr string, service *Service, logger *log.Logger) *Server {
	s := &Server{
		addr:    addr,
		logger:  logger.WithPrefix("server"),
		service: service,
		upgrader: websocket.Upgrader{
			// Game clients are not browsers pinned to an origin.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /admin/games", s.handleListGames)
	mux.HandleFunc("POST /admin/games", s.handleCreateGame)
	mux.HandleFunc("DELETE /admin/games/{id}", s.handleDeleteGame)
	mux.HandleFunc("POST /admin/games/{id}/start", s.handleStartGame)
	mux.HandleFunc("POST /admin/games/{id}/bots", s.handleAddBot)
	mux.HandleFunc("GET /admin/games/{id}/hands", s.handleHands)
	return mux
}

// Start serves until the context is canceled, then drains connections
// and closes the tables.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.service.Shutdown()
	}()

	s.logger.Info("listening", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	s.logger.Debug("client connected", "remote", ws.RemoteAddr().String())
	NewConnection(ws, s.service, s.logger).Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
