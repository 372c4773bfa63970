package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cardfelt/holdemd/internal/engine"
)

// The admin surface shares the game mux. It is unauthenticated and
// meant to sit behind the operator's own access controls.

func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"games": s.service.ListGames()})
}

// createGameRequest is the admin payload for a new table.
type createGameRequest struct {
	Name          string `json:"name"`
	MaxPlayers    int    `json:"maxPlayers"`
	SmallBlind    int64  `json:"smallBlind"`
	BigBlind      int64  `json:"bigBlind"`
	StartingStack int64  `json:"startingStack"`
	Visibility    string `json:"visibility"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.service.CreateGame(req.Name, engine.Config{
		SmallBlind:    req.SmallBlind,
		BigBlind:      req.BigBlind,
		StartingStack: req.StartingStack,
		MaxSeats:      req.MaxPlayers,
		Visibility:    engine.Visibility(req.Visibility),
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseGame(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	err := s.service.StartGame(r.PathValue("id"))
	switch {
	case errors.Is(err, ErrGameNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case err != nil:
		s.writeError(w, http.StatusConflict, err)
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

// addBotRequest is the admin payload for seating a bot.
type addBotRequest struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
}

func (s *Server) handleAddBot(w http.ResponseWriter, r *http.Request) {
	var req addBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		req.Name = "bot"
	}
	if req.Strategy == "" {
		req.Strategy = "call"
	}
	err := s.service.AddBot(r.PathValue("id"), req.Strategy, req.Name)
	switch {
	case errors.Is(err, ErrGameNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.writeJSON(w, http.StatusCreated, map[string]string{"status": "seated"})
	}
}

func (s *Server) handleHands(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"hands": s.service.Hands(r.PathValue("id"))})
}
