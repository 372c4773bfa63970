// Package session tracks who is connected: it maps players to
// connections, issues single-use reconnect tokens, and fans table
// output out to every viewer with per-viewer redaction.
package session

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/internal/view"
)

// MaxNameLength bounds a display name in runes.
const MaxNameLength = 32

var (
	// ErrBadToken rejects an identify with an unknown or spent token.
	ErrBadToken = errors.New("session: unknown reconnect token")
	// ErrNameRequired rejects a first identify without a name.
	ErrNameRequired = errors.New("session: name required")
	// ErrNameTooLong rejects a display name over MaxNameLength runes.
	ErrNameTooLong = errors.New("session: name too long")
)

// Conn is the transport half of a session. Implemented by the server's
// websocket connection; Send must not block the caller.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Session is one identified player, connected or not. A session
// survives its connection so the player can reconnect with their token.
type Session struct {
	PlayerID string
	Name     string

	mu      sync.Mutex
	token   string
	conn    Conn
	tableID string
}

// Token returns the current single-use reconnect token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// TableID returns the table the session is at, or "".
func (s *Session) TableID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableID
}

// SetTable records which table the session is at.
func (s *Session) SetTable(tableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableID = tableID
}

// Connected reports whether a transport is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send encodes and delivers one message, dropped silently when the
// session is detached.
func (s *Session) Send(action string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	data, err := protocol.Encode(action, payload)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// Manager owns all sessions.
type Manager struct {
	logger *log.Logger

	mu       sync.RWMutex
	byPlayer map[string]*Session
	byToken  map[string]string // token -> playerID
}

// NewManager creates a session manager.
func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		logger:   logger.WithPrefix("session"),
		byPlayer: make(map[string]*Session),
		byToken:  make(map[string]string),
	}
}

// Identify resolves an identify request. With a token it resumes the
// matching session (kicking any connection still attached to it); with
// a name it creates a fresh identity. Either way the reconnect token is
// rotated: each token works exactly once.
func (m *Manager) Identify(conn Conn, name, token string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != "" {
		playerID, ok := m.byToken[token]
		if !ok {
			return nil, false, ErrBadToken
		}
		s := m.byPlayer[playerID]
		delete(m.byToken, token)
		next := uuid.NewString()
		m.byToken[next] = playerID

		s.mu.Lock()
		old := s.conn
		s.conn = conn
		s.token = next
		s.mu.Unlock()
		if old != nil && old != conn {
			_ = old.Close()
		}
		m.logger.Info("session resumed", "player", playerID, "name", s.Name)
		return s, true, nil
	}

	if name == "" {
		return nil, false, ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, false, ErrNameTooLong
	}
	s := &Session{
		PlayerID: uuid.NewString(),
		Name:     name,
		token:    uuid.NewString(),
		conn:     conn,
	}
	m.byPlayer[s.PlayerID] = s
	m.byToken[s.token] = s.PlayerID
	m.logger.Info("session created", "player", s.PlayerID, "name", name)
	return s, false, nil
}

// Detach drops the transport from a session, keeping the session (and
// its token) alive for reconnection. Only the given conn is detached,
// so a stale disconnect cannot kick a newer connection.
func (m *Manager) Detach(s *Session, conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

// Get returns the session for a player id.
func (m *Manager) Get(playerID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byPlayer[playerID]
	return s, ok
}

// Remove deletes a session and invalidates its token.
func (m *Manager) Remove(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byPlayer[playerID]
	if !ok {
		return
	}
	delete(m.byPlayer, playerID)
	s.mu.Lock()
	delete(m.byToken, s.token)
	s.mu.Unlock()
}

// atTable snapshots the sessions currently at the given table.
func (m *Manager) atTable(tableID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.byPlayer {
		if s.TableID() == tableID {
			out = append(out, s)
		}
	}
	return out
}

// Transition implements the table broadcaster: every participant gets
// the event and their projected view, redacted for their eyes. The
// active player's view also carries how long their clock has left.
func (m *Manager) Transition(tableID string, tr engine.Transition, prevFinal *engine.State, actionRemaining time.Duration) {
	var g errgroup.Group
	for _, s := range m.atTable(tableID) {
		if tr.State.Participant(s.PlayerID) == nil {
			continue
		}
		g.Go(func() error {
			ev := view.ProjectEvent(tr.State, tr.Event, s.PlayerID)
			v := view.Project(tr.State, prevFinal, s.PlayerID)
			if v.LegalActions != nil {
				v.ActionRemainingMS = actionRemaining.Milliseconds()
			}
			return s.Send(protocol.ActionGameState, protocol.GameState{
				GameID: tableID,
				Event:  &ev,
				View:   &v,
			})
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error("broadcast failed", "table", tableID, "error", err)
	}
}

// TimeWarning implements the table broadcaster.
func (m *Manager) TimeWarning(tableID, playerID string, remaining time.Duration) {
	s, ok := m.Get(playerID)
	if !ok {
		return
	}
	err := s.Send(protocol.ActionTimeWarning, protocol.TimeWarning{
		GameID:      tableID,
		PlayerID:    playerID,
		RemainingMS: remaining.Milliseconds(),
	})
	if err != nil {
		m.logger.Error("time warning failed", "player", playerID, "error", err)
	}
}

// GameOver implements the table broadcaster, telling everyone at the
// table and releasing them from it.
func (m *Manager) GameOver(tableID, reason, winner string, standings []protocol.Standing) {
	for _, s := range m.atTable(tableID) {
		err := s.Send(protocol.ActionGameOver, protocol.GameOver{
			GameID:    tableID,
			Reason:    reason,
			Winner:    winner,
			Standings: standings,
		})
		if err != nil {
			m.logger.Error("game over send failed", "player", s.PlayerID, "error", err)
		}
		s.SetTable("")
	}
}

// Chat fans a chat line out to everyone at the sender's table, tagged
// with the sender's role there.
func (m *Manager) Chat(from *Session, role engine.Role, text string) {
	tableID := from.TableID()
	if tableID == "" {
		return
	}
	msg := protocol.ChatMessage{
		GameID:   tableID,
		PlayerID: from.PlayerID,
		Name:     from.Name,
		Role:     role,
		Text:     text,
	}
	for _, s := range m.atTable(tableID) {
		if err := s.Send(protocol.ActionChatMessage, msg); err != nil {
			m.logger.Error("chat send failed", "player", s.PlayerID, "error", err)
		}
	}
}
