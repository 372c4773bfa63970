// Package table runs one goroutine per table, feeding the pure engine
// and owning every clock: action timeouts, warnings and the delay
// between hands. All access goes through the table's mailbox, so engine
// state is never touched concurrently.
package table

import (
	"errors"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/internal/view"
	"github.com/cardfelt/holdemd/poker"
)

const (
	// MinPlayersToStart gates dealing a hand.
	MinPlayersToStart = 2

	defaultActionTimeout  = 30 * time.Second
	defaultInterHandDelay = 3 * time.Second

	mailboxSize = 64
)

// Warning thresholds as fractions of the action timeout.
var warnFractions = []float64{0.5, 0.8}

// ErrClosed is returned for operations against a terminated table.
var ErrClosed = errors.New("table: closed")

// Broadcaster fans table output out to connected clients. Implemented by
// the session layer; everything it receives is ground truth and must be
// projected per viewer before leaving the process. actionRemaining is
// how long the active player (if any) has on their clock.
type Broadcaster interface {
	Transition(tableID string, tr engine.Transition, prevFinal *engine.State, actionRemaining time.Duration)
	TimeWarning(tableID, playerID string, remaining time.Duration)
	GameOver(tableID, reason, winner string, standings []protocol.Standing)
}

// Sink observes every transition, for persistence and hand history.
type Sink interface {
	Record(tableID string, tr engine.Transition)
}

// Options configures a table.
type Options struct {
	ID             string
	Name           string
	Config         engine.Config
	ActionTimeout  time.Duration
	InterHandDelay time.Duration
	Clock          quartz.Clock
	Logger         *log.Logger
	Broadcaster    Broadcaster
	Sinks          []Sink

	// Decks is an optional queue of injected deck permutations, consumed
	// one per hand. When exhausted, hands fall back to shuffled decks.
	Decks [][]poker.Card
}

// Table is the orchestrator for a single game.
type Table struct {
	id     string
	name   string
	opts   Options
	logger *log.Logger
	clock  quartz.Clock

	mailbox chan func()
	done    chan struct{}

	// Everything below is owned by the run goroutine.
	state     *engine.State
	prevFinal *engine.State
	decks     [][]poker.Card
	finished  bool

	startTimer     *quartz.Timer
	actionTimer    *quartz.Timer
	warnTimers     []*quartz.Timer
	timedPlayer    string
	timedHand      int
	actionDeadline time.Time
}

// New creates and starts a table.
func New(opts Options) *Table {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.InterHandDelay <= 0 {
		opts.InterHandDelay = defaultInterHandDelay
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(nil)
	}
	t := &Table{
		id:      opts.ID,
		name:    opts.Name,
		opts:    opts,
		logger:  opts.Logger.WithPrefix("table").With("table", opts.ID),
		clock:   opts.Clock,
		mailbox: make(chan func(), mailboxSize),
		done:    make(chan struct{}),
		state:   engine.New(opts.ID, opts.Config),
		decks:   opts.Decks,
	}
	go t.run()
	return t
}

// ID returns the table identifier.
func (t *Table) ID() string { return t.id }

// Name returns the table's display name.
func (t *Table) Name() string { return t.name }

func (t *Table) run() {
	for {
		select {
		case fn := <-t.mailbox:
			fn()
		case <-t.done:
			return
		}
	}
}

// post queues work for the run goroutine without waiting.
func (t *Table) post(fn func()) {
	select {
	case t.mailbox <- fn:
	case <-t.done:
	}
}

// call queues work and waits for its result.
func (t *Table) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case t.mailbox <- func() { errc <- fn() }:
	case <-t.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-t.done:
		return ErrClosed
	}
}

// Join adds a player or spectator and returns their first view.
func (t *Table) Join(playerID, name string, role engine.Role) (view.GameView, error) {
	var v view.GameView
	err := t.call(func() error {
		if t.finished {
			return ErrClosed
		}
		s, ev, err := engine.AddPlayer(t.state, playerID, name, role)
		if err != nil {
			return err
		}
		t.applyTransitions([]engine.Transition{{State: s, Event: ev}})
		v = view.Project(t.state, t.prevFinal, playerID)
		return nil
	})
	return v, err
}

// Leave removes a participant. Leaving mid-hand folds their live hand.
func (t *Table) Leave(playerID string) error {
	return t.call(func() error {
		trs, err := engine.RemovePlayer(t.state, playerID)
		if err != nil {
			return err
		}
		t.applyTransitions(trs)
		return nil
	})
}

// Ready marks a player ready for the next hand. Readiness is sticky
// until the player leaves.
func (t *Table) Ready(playerID string) error {
	return t.call(func() error {
		s, err := engine.SetReady(t.state, playerID)
		if err != nil {
			return err
		}
		t.state = s
		t.maybeScheduleHand()
		return nil
	})
}

// Act applies a betting action from a player. handNumber must name the
// current hand: an action delayed in transit past a hand boundary is
// rejected rather than folded into the fresh hand.
func (t *Table) Act(playerID string, handNumber int, action engine.ActionType, amount int64) error {
	return t.call(func() error {
		if handNumber != t.state.HandNum {
			return engine.ErrStaleHand
		}
		trs, err := engine.ProcessAction(t.state, playerID, action, amount)
		if err != nil {
			return err
		}
		t.applyTransitions(trs)
		return nil
	})
}

// Reveal shows the player's hole cards during the reveal window. The
// window closes when the next hand starts, which is exactly when the
// hand number moves on.
func (t *Table) Reveal(playerID string, handNumber int) error {
	return t.call(func() error {
		if handNumber != t.state.HandNum {
			return engine.ErrStaleHand
		}
		s, ev, err := engine.Reveal(t.state, playerID)
		if err != nil {
			return err
		}
		t.applyTransitions([]engine.Transition{{State: s, Event: ev}})
		return nil
	})
}

// SetConnected flags a participant's connectivity. Disconnected players
// are not folded; their action clock keeps running.
func (t *Table) SetConnected(playerID string, connected bool) error {
	return t.call(func() error {
		s, err := engine.SetConnected(t.state, playerID, connected)
		if err != nil {
			return err
		}
		t.state = s
		return nil
	})
}

// ViewFor projects the current state for one viewer, for joins and
// reconnect resyncs.
func (t *Table) ViewFor(playerID string) (view.GameView, error) {
	var v view.GameView
	err := t.call(func() error {
		v = view.Project(t.state, t.prevFinal, playerID)
		if v.LegalActions != nil {
			v.ActionRemainingMS = t.actionRemaining(t.state).Milliseconds()
		}
		return nil
	})
	return v, err
}

// RoleOf reports whether the participant is seated or spectating.
func (t *Table) RoleOf(playerID string) (engine.Role, error) {
	var role engine.Role
	err := t.call(func() error {
		p := t.state.Participant(playerID)
		if p == nil {
			return engine.ErrNotInGame
		}
		role = p.Role
		return nil
	})
	return role, err
}

// Status is a snapshot for lobby listings.
type Status struct {
	ID             string
	Name           string
	Players        int
	Spectators     int
	MaxSeats       int
	SmallBlind     int64
	BigBlind       int64
	HandInProgress bool
	Finished       bool
}

// Status reports the table's lobby summary.
func (t *Table) Status() (Status, error) {
	var st Status
	err := t.call(func() error {
		st = Status{
			ID:             t.id,
			Name:           t.name,
			Players:        len(t.state.Seats),
			Spectators:     len(t.state.Spectators),
			MaxSeats:       t.state.Config.MaxSeats,
			SmallBlind:     t.state.Config.SmallBlind,
			BigBlind:       t.state.Config.BigBlind,
			HandInProgress: t.state.HandInProgress,
			Finished:       t.finished,
		}
		return nil
	})
	return st, err
}

// HasParticipant reports whether the player or spectator is at the table.
func (t *Table) HasParticipant(playerID string) bool {
	found := false
	_ = t.call(func() error {
		found = t.state.Participant(playerID) != nil
		return nil
	})
	return found
}

// StartNow deals the next hand immediately, skipping the inter-hand
// delay. Used by the admin surface: seated players are marked ready so
// a force-start never waits on anyone.
func (t *Table) StartNow() error {
	return t.call(func() error {
		if t.finished {
			return ErrClosed
		}
		for _, p := range t.state.Seats {
			if p.Ready {
				continue
			}
			if s, err := engine.SetReady(t.state, p.ID); err == nil {
				t.state = s
			}
		}
		t.stopStartTimer()
		return t.startHand()
	})
}

// Close terminates the table and notifies everyone.
func (t *Table) Close(reason string) {
	_ = t.call(func() error {
		t.terminate(reason, "")
		return nil
	})
}

// Done is closed when the table has terminated.
func (t *Table) Done() <-chan struct{} { return t.done }

// maybeScheduleHand arms the inter-hand timer once enough players are
// ready and no hand is running.
func (t *Table) maybeScheduleHand() {
	if t.finished || t.state.HandInProgress || t.startTimer != nil {
		return
	}
	if t.state.ReadyCount() < MinPlayersToStart {
		return
	}
	t.logger.Debug("scheduling next hand", "delay", t.opts.InterHandDelay)
	t.startTimer = t.clock.AfterFunc(t.opts.InterHandDelay, func() {
		t.post(func() {
			t.startTimer = nil
			if err := t.startHand(); err != nil && !errors.Is(err, engine.ErrNotEnough) {
				t.logger.Error("failed to start hand", "error", err)
			}
		})
	})
}

func (t *Table) stopStartTimer() {
	if t.startTimer != nil {
		t.startTimer.Stop()
		t.startTimer = nil
	}
}

func (t *Table) startHand() error {
	if t.state.HandInProgress {
		return engine.ErrHandRunning
	}
	var deck []poker.Card
	if len(t.decks) > 0 {
		deck, t.decks = t.decks[0], t.decks[1:]
	}
	trs, err := engine.StartHand(t.state, deck)
	if err != nil {
		return err
	}
	t.logger.Info("hand started", "hand", trs[0].State.HandNum, "dealerSeat", trs[0].State.DealerSeat)
	t.applyTransitions(trs)
	return nil
}

// applyTransitions advances local state through the engine's ordered
// transitions, records and broadcasts each one, then reschedules timers
// based on where the table landed.
func (t *Table) applyTransitions(trs []engine.Transition) {
	for _, tr := range trs {
		t.state = tr.State
		for _, sink := range t.opts.Sinks {
			sink.Record(t.id, tr)
		}
		if t.opts.Broadcaster != nil {
			t.opts.Broadcaster.Transition(t.id, tr, t.prevFinal, t.actionRemaining(tr.State))
		}
		if tr.Event.Type == engine.EventHandEnd {
			t.prevFinal = tr.State
		}
	}

	if t.state.HandInProgress {
		t.scheduleActionTimers()
		return
	}

	t.stopActionTimers()
	if len(trs) > 0 && trs[len(trs)-1].Event.Type == engine.EventHandEnd {
		t.state = engine.PruneDeparted(t.state)
		if winner := t.soleSurvivor(); winner != "" {
			t.terminate("completed", winner)
			return
		}
	}
	t.maybeScheduleHand()
}

// soleSurvivor returns the last player holding chips once everyone else
// is felted, or "" while the game is still contested.
func (t *Table) soleSurvivor() string {
	if len(t.state.Seats) < 2 || t.state.PlayersWithChips() != 1 {
		return ""
	}
	for _, p := range t.state.Seats {
		if p.Stack > 0 {
			return p.ID
		}
	}
	return ""
}

func (t *Table) scheduleActionTimers() {
	playerID := t.state.ActivePlayerID
	handNum := t.state.HandNum
	if t.actionTimer != nil && t.timedPlayer == playerID && t.timedHand == handNum {
		// Same decision still pending (a join or reveal happened); do not
		// reset the player's clock.
		return
	}
	t.stopActionTimers()
	if playerID == "" {
		return
	}
	t.timedPlayer = playerID
	t.timedHand = handNum
	timeout := t.opts.ActionTimeout
	t.actionDeadline = t.clock.Now().Add(timeout)

	for _, frac := range warnFractions {
		remaining := time.Duration((1 - frac) * float64(timeout))
		t.warnTimers = append(t.warnTimers, t.clock.AfterFunc(time.Duration(frac*float64(timeout)), func() {
			t.post(func() {
				if t.stillActing(playerID, handNum) && t.opts.Broadcaster != nil {
					t.opts.Broadcaster.TimeWarning(t.id, playerID, remaining)
				}
			})
		}))
	}
	t.actionTimer = t.clock.AfterFunc(timeout, func() {
		t.post(func() { t.timeoutAction(playerID, handNum) })
	})
}

func (t *Table) stopActionTimers() {
	if t.actionTimer != nil {
		t.actionTimer.Stop()
		t.actionTimer = nil
	}
	for _, timer := range t.warnTimers {
		timer.Stop()
	}
	t.warnTimers = nil
	t.timedPlayer = ""
	t.timedHand = 0
	t.actionDeadline = time.Time{}
}

// actionRemaining reports how long the active player in s has left on
// their clock. A transition is broadcast before its timers are armed,
// so a fresh decision still has the full timeout ahead of it.
func (t *Table) actionRemaining(s *engine.State) time.Duration {
	if !s.HandInProgress || s.ActivePlayerID == "" {
		return 0
	}
	if t.actionTimer != nil && t.timedPlayer == s.ActivePlayerID && t.timedHand == s.HandNum {
		if d := t.actionDeadline.Sub(t.clock.Now()); d > 0 {
			return d
		}
		return 0
	}
	return t.opts.ActionTimeout
}

// stillActing guards against stale timers firing after the turn moved.
func (t *Table) stillActing(playerID string, handNum int) bool {
	return t.state.HandInProgress && t.state.HandNum == handNum && t.state.ActivePlayerID == playerID
}

// timeoutAction substitutes the default action for a player who let the
// clock run out: check when free, otherwise fold.
func (t *Table) timeoutAction(playerID string, handNum int) {
	if !t.stillActing(playerID, handNum) {
		return
	}
	substituted := engine.ActionFold
	for _, opt := range engine.LegalActions(t.state, playerID) {
		if opt.Type == engine.ActionCheck {
			substituted = engine.ActionCheck
			break
		}
	}
	t.logger.Info("player timed out", "player", playerID, "substituted", substituted)

	s, ev := engine.NoteTimeout(t.state, playerID, substituted)
	t.applyTransitions([]engine.Transition{{State: s, Event: ev}})

	trs, err := engine.ProcessAction(t.state, playerID, substituted, 0)
	if err != nil {
		t.logger.Error("timeout substitution rejected", "player", playerID, "error", err)
		return
	}
	t.applyTransitions(trs)
}

func (t *Table) terminate(reason, winner string) {
	if t.finished {
		return
	}
	t.finished = true
	t.stopStartTimer()
	t.stopActionTimers()
	t.logger.Info("table terminated", "reason", reason, "winner", winner)
	if t.opts.Broadcaster != nil {
		t.opts.Broadcaster.GameOver(t.id, reason, winner, t.standings())
	}
	close(t.done)
}

// standings orders the seated players for the final announcement:
// biggest stack first, ties broken by seat.
func (t *Table) standings() []protocol.Standing {
	out := make([]protocol.Standing, 0, len(t.state.Seats))
	for _, p := range t.state.Seats {
		out = append(out, protocol.Standing{PlayerID: p.ID, Name: p.Name, Seat: p.Seat, Stack: p.Stack})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stack != out[j].Stack {
			return out[i].Stack > out[j].Stack
		}
		return out[i].Seat < out[j].Seat
	})
	return out
}
