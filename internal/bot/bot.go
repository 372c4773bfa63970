// Package bot implements in-process players. A bot speaks the same
// wire protocol as a remote client: it identifies, joins a game, sits
// ready, and answers every decision its strategy is handed.
package bot

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/internal/session"
	"github.com/cardfelt/holdemd/internal/view"
)

const inboxSize = 256

// Options configures a bot.
type Options struct {
	Name     string
	GameID   string
	Strategy Strategy
	Logger   *log.Logger

	// Dispatch delivers one client-to-server message, exactly as a
	// websocket read would. The bot calls it only from its own goroutine.
	Dispatch func(data []byte)

	// Seed fixes the strategy's randomness for tests. Zero seeds from
	// the clock.
	Seed int64
}

// Bot is one automated player.
type Bot struct {
	name     string
	gameID   string
	strategy Strategy
	logger   *log.Logger
	dispatch func([]byte)
	rng      *rand.Rand

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu           sync.Mutex
	sess         *session.Session
	lastDecision string
}

// New creates a bot. Start must be called to bring it to the table.
func New(opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = log.New(nil)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Bot{
		name:     opts.Name,
		gameID:   opts.GameID,
		strategy: opts.Strategy,
		logger:   opts.Logger.WithPrefix("bot").With("name", opts.Name),
		dispatch: opts.Dispatch,
		rng:      rand.New(rand.NewSource(seed)),
		inbox:    make(chan []byte, inboxSize),
		closed:   make(chan struct{}),
	}
}

// Name returns the bot's display name.
func (b *Bot) Name() string { return b.name }

// Start identifies the bot and begins processing server messages.
func (b *Bot) Start() {
	go b.run()
	b.send(protocol.ActionIdentify, protocol.Identify{Name: b.name})
}

// Session returns the identity bound to the bot, if any.
func (b *Bot) Session() *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess
}

// BindSession attaches the bot's identified session.
func (b *Bot) BindSession(s *session.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sess = s
}

// Send implements the session transport: server messages queue into the
// bot's inbox. Never blocks the sender.
func (b *Bot) Send(data []byte) error {
	select {
	case b.inbox <- data:
		return nil
	case <-b.closed:
		return fmt.Errorf("bot: stopped")
	default:
		b.logger.Warn("inbox full, dropping message")
		return fmt.Errorf("bot: inbox full")
	}
}

// Close stops the bot. Safe to call more than once.
func (b *Bot) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func (b *Bot) run() {
	for {
		select {
		case <-b.closed:
			return
		case data := <-b.inbox:
			b.handle(data)
		}
	}
}

func (b *Bot) handle(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		b.logger.Error("bad server message", "error", err)
		return
	}

	switch env.Action {
	case protocol.ActionIdentified:
		b.send(protocol.ActionJoinGame, protocol.JoinGame{GameID: b.gameID})

	case protocol.ActionGameJoined:
		b.send(protocol.ActionReady, nil)

	case protocol.ActionGameState:
		gs, err := protocol.Payload[protocol.GameState](env)
		if err != nil || gs.View == nil {
			return
		}
		b.maybeAct(*gs.View)

	case protocol.ActionGameOver:
		b.logger.Debug("game over, stopping")
		_ = b.Close()

	case protocol.ActionError:
		e, _ := protocol.Payload[protocol.Error](env)
		b.logger.Debug("server rejected message", "code", e.Code, "message", e.Message)
	}
}

// maybeAct answers the pending decision if the view shows one and the
// bot has not already answered it. Joins and reveals re-broadcast the
// same decision, so acting is keyed on what would change if anyone bet.
func (b *Bot) maybeAct(v view.GameView) {
	if len(v.LegalActions) == 0 {
		return
	}
	key := fmt.Sprintf("%d/%s/%d/%d", v.HandNumber, v.Stage, v.Pot, v.CurrentHighBet)
	if key == b.lastDecision {
		return
	}
	b.lastDecision = key

	action, amount := b.strategy.Act(v, b.rng)
	b.logger.Debug("acting", "action", action, "amount", amount)
	b.send(protocol.ActionPlayerAction, protocol.PlayerAction{HandNumber: v.HandNumber, Action: action, Amount: amount})
}

func (b *Bot) send(action string, payload any) {
	data, err := protocol.Encode(action, payload)
	if err != nil {
		b.logger.Error("failed to encode message", "action", action, "error", err)
		return
	}
	b.dispatch(data)
}
