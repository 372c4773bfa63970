package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cardfelt/holdemd/internal/bot"
	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/gameid"
	"github.com/cardfelt/holdemd/internal/history"
	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/internal/session"
	"github.com/cardfelt/holdemd/internal/table"
)

// Client is one protocol endpoint the service routes for. Websocket
// connections and in-process bots both satisfy it.
type Client interface {
	session.Conn
	Session() *session.Session
	BindSession(s *session.Session)
}

// Service owns the sessions, the table registry and the message
// routing between them.
type Service struct {
	cfg      *Config
	logger   *log.Logger
	clock    quartz.Clock
	sessions *session.Manager
	memory   *history.MemorySink
	files    *history.FileSink
	sinks    []table.Sink

	mu     sync.RWMutex
	tables map[string]*table.Table
	bots   map[string][]*bot.Bot // tableID -> seated bots
}

// NewService builds the service, creates the configured tables and
// seats the configured bots.
func NewService(cfg *Config, logger *log.Logger, clock quartz.Clock) (*Service, error) {
	if clock == nil {
		clock = quartz.NewReal()
	}
	s := &Service{
		cfg:      cfg,
		logger:   logger.WithPrefix("service"),
		clock:    clock,
		sessions: session.NewManager(logger),
		memory:   history.NewMemorySink(cfg.Server.HandHistoryLimit),
		tables:   make(map[string]*table.Table),
		bots:     make(map[string][]*bot.Bot),
	}
	s.sinks = []table.Sink{s.memory}
	if cfg.Server.HistoryDir != "" {
		files, err := history.NewFileSink(cfg.Server.HistoryDir, logger)
		if err != nil {
			return nil, err
		}
		s.files = files
		s.sinks = append(s.sinks, files)
	}

	byName := make(map[string]string, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		tbl := s.createTable(tc.Name, tc.EngineConfig())
		byName[tc.Name] = tbl.ID()
	}
	for _, bc := range cfg.Bots {
		for _, game := range bc.Games {
			for i := 0; i < bc.Count; i++ {
				name := bc.Name
				if bc.Count > 1 {
					name = fmt.Sprintf("%s-%d", bc.Name, i+1)
				}
				if err := s.AddBot(byName[game], bc.Strategy, name); err != nil {
					return nil, err
				}
			}
		}
	}
	return s, nil
}

// Shutdown closes every table and releases the history files.
func (s *Service) Shutdown() {
	for _, tbl := range s.snapshot() {
		tbl.Close("server shutting down")
	}
	if s.files != nil {
		_ = s.files.Close()
	}
}

// createTable registers a new table and watches for its termination.
func (s *Service) createTable(name string, cfg engine.Config) *table.Table {
	id := gameid.New()
	tbl := table.New(table.Options{
		ID:             id,
		Name:           name,
		Config:         cfg,
		ActionTimeout:  s.cfg.ActionTimeout(),
		InterHandDelay: s.cfg.InterHandDelay(),
		Clock:          s.clock,
		Logger:         s.logger,
		Broadcaster:    s.sessions,
		Sinks:          s.sinks,
	})

	s.mu.Lock()
	s.tables[id] = tbl
	s.mu.Unlock()
	s.logger.Info("table created", "table", id, "name", name)

	go func() {
		<-tbl.Done()
		s.mu.Lock()
		delete(s.tables, id)
		bots := s.bots[id]
		delete(s.bots, id)
		s.mu.Unlock()
		for _, b := range bots {
			_ = b.Close()
		}
	}()
	return tbl
}

func (s *Service) table(id string) *table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[id]
}

func (s *Service) snapshot() []*table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*table.Table, 0, len(s.tables))
	for _, tbl := range s.tables {
		out = append(out, tbl)
	}
	return out
}

func (s *Service) botCount(tableID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bots[tableID])
}

// HandleMessage routes one client message. Everything except identify
// requires an identified session; rejections go back as error envelopes
// and never advance game state.
func (s *Service) HandleMessage(c Client, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}

	if env.Action == protocol.ActionIdentify {
		s.handleIdentify(c, env)
		return
	}

	sess := c.Session()
	if sess == nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeNotIdentified, Message: "identify first"})
		return
	}

	switch env.Action {
	case protocol.ActionListGames:
		_ = sess.Send(protocol.ActionGameList, protocol.GameList{Games: s.ListGames()})
	case protocol.ActionJoinGame:
		s.handleJoin(c, sess, env)
	case protocol.ActionReady:
		s.withTable(c, sess, func(tbl *table.Table) error {
			return tbl.Ready(sess.PlayerID)
		})
	case protocol.ActionPlayerAction:
		s.handleAction(c, sess, env)
	case protocol.ActionRevealCards:
		s.handleReveal(c, sess, env)
	case protocol.ActionChat:
		s.handleChat(c, sess, env)
	case protocol.ActionLeaveGame:
		s.handleLeave(c, sess)
	default:
		s.sendError(c, protocol.Error{
			Code:    protocol.CodeInvalidMessage,
			Message: fmt.Sprintf("unknown action %q", env.Action),
		})
	}
}

// HandleDisconnect detaches the session from a dropped transport. The
// session itself survives for reconnection, and any seat is held with
// the player marked disconnected.
func (s *Service) HandleDisconnect(c Client) {
	sess := c.Session()
	if sess == nil {
		return
	}
	s.sessions.Detach(sess, c)
	if tableID := sess.TableID(); tableID != "" {
		if tbl := s.table(tableID); tbl != nil {
			if err := tbl.SetConnected(sess.PlayerID, false); err != nil && !errors.Is(err, table.ErrClosed) {
				s.logger.Debug("disconnect flag failed", "player", sess.PlayerID, "error", err)
			}
		}
	}
}

func (s *Service) handleIdentify(c Client, env protocol.Envelope) {
	p, err := protocol.Payload[protocol.Identify](env)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}
	sess, resumed, err := s.sessions.Identify(c, p.Name, p.Token)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}
	c.BindSession(sess)
	_ = sess.Send(protocol.ActionIdentified, protocol.Identified{
		PlayerID: sess.PlayerID,
		Name:     sess.Name,
		Token:    sess.Token(),
		Resumed:  resumed,
	})
	if resumed {
		s.resync(sess)
	}
}

// resync puts a resumed session back into its game: the seat was held
// across the disconnect, so it gets one gameState carrying the full
// current view under a synthesized PLAYER_JOINED, never a replay of
// what it missed. Spectator sessions do not survive a disconnect.
func (s *Service) resync(sess *session.Session) {
	tableID := sess.TableID()
	if tableID == "" {
		return
	}
	tbl := s.table(tableID)
	if tbl == nil || !tbl.HasParticipant(sess.PlayerID) {
		sess.SetTable("")
		return
	}
	role, err := tbl.RoleOf(sess.PlayerID)
	if err != nil {
		sess.SetTable("")
		return
	}
	if role == engine.RoleSpectator {
		_ = tbl.Leave(sess.PlayerID)
		sess.SetTable("")
		return
	}
	if err := tbl.SetConnected(sess.PlayerID, true); err != nil {
		s.logger.Debug("reconnect flag failed", "player", sess.PlayerID, "error", err)
	}
	v, err := tbl.ViewFor(sess.PlayerID)
	if err != nil {
		return
	}
	ev := engine.Event{
		Type:       engine.EventPlayerJoined,
		HandNumber: v.HandNumber,
		DealerSeat: v.DealerSeat,
		PlayerID:   sess.PlayerID,
		Seat:       v.YourSeat,
	}
	_ = sess.Send(protocol.ActionGameState, protocol.GameState{GameID: tableID, Event: &ev, View: &v})
}

func (s *Service) handleJoin(c Client, sess *session.Session, env protocol.Envelope) {
	p, err := protocol.Payload[protocol.JoinGame](env)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}
	if cur := sess.TableID(); cur != "" && cur != p.GameID {
		s.sendError(c, protocol.Error{Code: protocol.CodeAlreadyInGame, Message: "leave your current game first"})
		return
	}
	tbl := s.table(p.GameID)
	if tbl == nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeGameNotFound, Message: fmt.Sprintf("no game %q", p.GameID)})
		return
	}
	role := p.Role
	if role == "" {
		role = engine.RolePlayer
	}
	v, err := tbl.Join(sess.PlayerID, sess.Name, role)
	if errors.Is(err, table.ErrClosed) {
		s.sendError(c, protocol.Error{Code: protocol.CodeGameNotFound, Message: "game has ended"})
		return
	}
	if err != nil {
		s.sendError(c, protocol.ErrorFor(err))
		return
	}
	sess.SetTable(p.GameID)
	_ = sess.Send(protocol.ActionGameJoined, protocol.GameJoined{GameID: p.GameID, View: v})
}

func (s *Service) handleAction(c Client, sess *session.Session, env protocol.Envelope) {
	p, err := protocol.Payload[protocol.PlayerAction](env)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}
	s.withTable(c, sess, func(tbl *table.Table) error {
		return tbl.Act(sess.PlayerID, p.HandNumber, p.Action, p.Amount)
	})
}

func (s *Service) handleReveal(c Client, sess *session.Session, env protocol.Envelope) {
	p, err := protocol.Payload[protocol.RevealCards](env)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}
	s.withTable(c, sess, func(tbl *table.Table) error {
		return tbl.Reveal(sess.PlayerID, p.HandNumber)
	})
}

func (s *Service) handleChat(c Client, sess *session.Session, env protocol.Envelope) {
	p, err := protocol.Payload[protocol.Chat](env)
	if err != nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeInvalidMessage, Message: err.Error()})
		return
	}
	if p.Text == "" || len(p.Text) > protocol.MaxChatLength {
		s.sendError(c, protocol.Error{
			Code:    protocol.CodeInvalidMessage,
			Message: fmt.Sprintf("chat text must be 1-%d bytes", protocol.MaxChatLength),
		})
		return
	}
	tbl := s.table(sess.TableID())
	if tbl == nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeNotInGame, Message: "join a game first"})
		return
	}
	role, err := tbl.RoleOf(sess.PlayerID)
	if err != nil {
		s.sendError(c, protocol.ErrorFor(err))
		return
	}
	s.sessions.Chat(sess, role, p.Text)
}

func (s *Service) handleLeave(c Client, sess *session.Session) {
	tableID := sess.TableID()
	tbl := s.table(tableID)
	if tableID == "" || tbl == nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeNotInGame, Message: "join a game first"})
		return
	}
	err := tbl.Leave(sess.PlayerID)
	if err != nil && !errors.Is(err, table.ErrClosed) {
		s.sendError(c, protocol.ErrorFor(err))
		return
	}
	sess.SetTable("")
}

// withTable runs an operation against the session's current table,
// mapping failures onto wire errors.
func (s *Service) withTable(c Client, sess *session.Session, fn func(tbl *table.Table) error) {
	tbl := s.table(sess.TableID())
	if tbl == nil {
		s.sendError(c, protocol.Error{Code: protocol.CodeNotInGame, Message: "join a game first"})
		return
	}
	if err := fn(tbl); err != nil {
		if errors.Is(err, table.ErrClosed) {
			s.sendError(c, protocol.Error{Code: protocol.CodeGameNotFound, Message: "game has ended"})
			return
		}
		s.sendError(c, protocol.ErrorFor(err))
	}
}

func (s *Service) sendError(c Client, e protocol.Error) {
	data, err := protocol.Encode(protocol.ActionError, e)
	if err != nil {
		s.logger.Error("failed to encode error", "error", err)
		return
	}
	_ = c.Send(data)
}

// ListGames summarizes every live table for the lobby and the admin
// surface.
func (s *Service) ListGames() []protocol.GameSummary {
	games := make([]protocol.GameSummary, 0)
	for _, tbl := range s.snapshot() {
		st, err := tbl.Status()
		if err != nil || st.Finished {
			continue
		}
		games = append(games, protocol.GameSummary{
			ID:             st.ID,
			Name:           st.Name,
			Players:        st.Players,
			Bots:           s.botCount(st.ID),
			MaxSeats:       st.MaxSeats,
			Spectators:     st.Spectators,
			SmallBlind:     st.SmallBlind,
			BigBlind:       st.BigBlind,
			HandInProgress: st.HandInProgress,
		})
	}
	return games
}

// ErrGameNotFound reports an admin operation against an unknown game.
var ErrGameNotFound = errors.New("server: game not found")

// CreateGame makes a new table at runtime.
func (s *Service) CreateGame(name string, cfg engine.Config) (protocol.GameSummary, error) {
	if cfg.SmallBlind <= 0 || cfg.BigBlind <= cfg.SmallBlind {
		return protocol.GameSummary{}, fmt.Errorf("server: invalid blinds %d/%d", cfg.SmallBlind, cfg.BigBlind)
	}
	if cfg.MaxSeats == 0 {
		cfg.MaxSeats = 6
	}
	if cfg.MaxSeats < 2 || cfg.MaxSeats > 10 {
		return protocol.GameSummary{}, fmt.Errorf("server: invalid seat count %d", cfg.MaxSeats)
	}
	if cfg.StartingStack == 0 {
		cfg.StartingStack = cfg.BigBlind * 100
	}
	if cfg.StartingStack < cfg.BigBlind {
		return protocol.GameSummary{}, fmt.Errorf("server: starting stack must cover the big blind")
	}
	switch cfg.Visibility {
	case "":
		cfg.Visibility = engine.VisibilityShowdown
	case engine.VisibilityShowdown, engine.VisibilityDelayed, engine.VisibilityImmediate:
	default:
		return protocol.GameSummary{}, fmt.Errorf("server: invalid visibility %q", cfg.Visibility)
	}

	tbl := s.createTable(name, cfg)
	st, err := tbl.Status()
	if err != nil {
		return protocol.GameSummary{}, err
	}
	return protocol.GameSummary{
		ID:         st.ID,
		Name:       st.Name,
		MaxSeats:   st.MaxSeats,
		SmallBlind: st.SmallBlind,
		BigBlind:   st.BigBlind,
	}, nil
}

// CloseGame terminates a table.
func (s *Service) CloseGame(id string) error {
	tbl := s.table(id)
	if tbl == nil {
		return ErrGameNotFound
	}
	tbl.Close("closed by admin")
	return nil
}

// StartGame deals the next hand immediately.
func (s *Service) StartGame(id string) error {
	tbl := s.table(id)
	if tbl == nil {
		return ErrGameNotFound
	}
	return tbl.StartNow()
}

// Hands returns the retained hand history for a table.
func (s *Service) Hands(id string) []history.HandRecord {
	return s.memory.Hands(id)
}

// AddBot seats an automated player at a table.
func (s *Service) AddBot(tableID, strategy, name string) error {
	tbl := s.table(tableID)
	if tbl == nil {
		return ErrGameNotFound
	}
	strat, err := bot.ForName(strategy)
	if err != nil {
		return err
	}
	var b *bot.Bot
	b = bot.New(bot.Options{
		Name:     name,
		GameID:   tableID,
		Strategy: strat,
		Logger:   s.logger,
		Dispatch: func(data []byte) { s.HandleMessage(b, data) },
	})

	s.mu.Lock()
	s.bots[tableID] = append(s.bots[tableID], b)
	s.mu.Unlock()

	b.Start()
	s.logger.Info("bot seated", "table", tableID, "name", name, "strategy", strategy)
	return nil
}
