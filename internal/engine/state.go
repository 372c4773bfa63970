// Package engine implements the hand-lifecycle state machine for no-limit
// Texas Hold'em. Every operation is pure: it takes a table state plus
// inputs and returns either an error or an ordered sequence of transitions,
// never mutating its inputs and never touching the clock or any I/O. Deck
// permutations may be injected for deterministic play; otherwise StartHand
// shuffles with a cryptographically seeded source.
package engine

import (
	"fmt"
	"sort"

	"github.com/cardfelt/holdemd/poker"
)

// Stage is a betting stage within a hand.
type Stage string

const (
	StagePreFlop  Stage = "PRE_FLOP"
	StageFlop     Stage = "FLOP"
	StageTurn     Stage = "TURN"
	StageRiver    Stage = "RIVER"
	StageShowdown Stage = "SHOWDOWN"
)

// Role distinguishes seated players from watchers.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Visibility is the table's spectator hole-card policy.
type Visibility string

const (
	// VisibilityShowdown shows spectators exactly what players see.
	VisibilityShowdown Visibility = "showdown"
	// VisibilityDelayed shows spectators the previous completed hand's
	// final view until the current hand ends.
	VisibilityDelayed Visibility = "delayed"
	// VisibilityImmediate shows spectators all hole cards at all times.
	VisibilityImmediate Visibility = "immediate"
)

// ActionType is a betting action requested by a player.
type ActionType string

const (
	ActionFold  ActionType = "FOLD"
	ActionCheck ActionType = "CHECK"
	ActionCall  ActionType = "CALL"
	ActionBet   ActionType = "BET"
	ActionRaise ActionType = "RAISE"
	ActionAllIn ActionType = "ALL_IN"
)

// MaxChips bounds every chip amount the engine will accept.
const MaxChips = int64(1)<<53 - 1

// Config carries the immutable per-table game parameters.
type Config struct {
	SmallBlind    int64      `json:"smallBlind"`
	BigBlind      int64      `json:"bigBlind"`
	StartingStack int64      `json:"startingStack"`
	MaxSeats      int        `json:"maxSeats"`
	Visibility    Visibility `json:"visibility"`
}

// Player is a participant in a table: seated player or spectator.
type Player struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Seat      int          `json:"seat"` // -1 for spectators
	Role      Role         `json:"role"`
	Stack     int64        `json:"stack"`
	StreetBet int64        `json:"streetBet"`
	HandBet   int64        `json:"handBet"` // total contributed this hand
	Folded    bool         `json:"folded"`
	AllIn     bool         `json:"allIn"`
	Ready     bool         `json:"ready"`
	Connected bool         `json:"connected"`
	Revealed  bool         `json:"revealed"`
	Left      bool         `json:"left,omitempty"` // departed mid-hand, seat held until hand end
	Acted     bool         `json:"acted"` // acted since the last full raise this street
	HoleCards []poker.Card `json:"holeCards,omitempty"`
}

func (p *Player) clone() *Player {
	cp := *p
	if p.HoleCards != nil {
		cp.HoleCards = append([]poker.Card(nil), p.HoleCards...)
	}
	return &cp
}

// InHand reports whether the player is dealt into the current hand.
func (p *Player) InHand() bool {
	return p.Role == RolePlayer && len(p.HoleCards) == 2
}

// canAct reports whether the player still has a decision to make this street.
func (p *Player) canAct() bool {
	return p.InHand() && !p.Folded && !p.AllIn
}

// State is the full ground-truth table state. Clients never see it
// directly; the view package projects it per viewer.
type State struct {
	TableID        string       `json:"tableId"`
	Config         Config       `json:"config"`
	Seats          []*Player    `json:"seats"` // ascending seat order
	Spectators     []*Player    `json:"spectators,omitempty"`
	DealerSeat     int          `json:"dealerSeat"`
	HandNum        int          `json:"handNumber"`
	Stage          Stage        `json:"stage"`
	Community      []poker.Card `json:"community,omitempty"`
	Deck           []poker.Card `json:"deck,omitempty"` // remaining cards; never projected
	Pot            int64        `json:"pot"`
	CurrentHighBet int64        `json:"currentHighBet"`
	LastRaise      int64        `json:"lastRaise"`
	ActivePlayerID string       `json:"activePlayerId,omitempty"`
	HandInProgress bool         `json:"handInProgress"`
	Events         []Event      `json:"events,omitempty"` // ordered log for the current hand
}

// Transition pairs a state snapshot with the event that produced it.
type Transition struct {
	State *State
	Event Event
}

// New creates the initial state for a table.
func New(tableID string, cfg Config) *State {
	if cfg.Visibility == "" {
		cfg.Visibility = VisibilityShowdown
	}
	return &State{
		TableID:    tableID,
		Config:     cfg,
		DealerSeat: -1,
		Stage:      StagePreFlop,
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	cp := *s
	cp.Seats = make([]*Player, len(s.Seats))
	for i, p := range s.Seats {
		cp.Seats[i] = p.clone()
	}
	if s.Spectators != nil {
		cp.Spectators = make([]*Player, len(s.Spectators))
		for i, p := range s.Spectators {
			cp.Spectators[i] = p.clone()
		}
	}
	if s.Community != nil {
		cp.Community = append([]poker.Card(nil), s.Community...)
	}
	if s.Deck != nil {
		cp.Deck = append([]poker.Card(nil), s.Deck...)
	}
	if s.Events != nil {
		cp.Events = append([]Event(nil), s.Events...)
	}
	return &cp
}

// Participant returns the player or spectator with the given id.
func (s *State) Participant(id string) *Player {
	for _, p := range s.Seats {
		if p.ID == id {
			return p
		}
	}
	for _, p := range s.Spectators {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// seatedAt returns the player occupying the given seat index.
func (s *State) seatedAt(seat int) *Player {
	for _, p := range s.Seats {
		if p.Seat == seat {
			return p
		}
	}
	return nil
}

// lowestFreeSeat returns the lowest unoccupied seat index, or -1 if full.
func (s *State) lowestFreeSeat() int {
	for seat := 0; seat < s.Config.MaxSeats; seat++ {
		if s.seatedAt(seat) == nil {
			return seat
		}
	}
	return -1
}

// nextSeat returns the first player after the given seat (cyclically, in
// seat order) satisfying pred, or nil if none does.
func (s *State) nextSeat(after int, pred func(*Player) bool) *Player {
	if len(s.Seats) == 0 {
		return nil
	}
	// Seats is kept in ascending seat order; find the insertion point.
	start := sort.Search(len(s.Seats), func(i int) bool { return s.Seats[i].Seat > after })
	for i := 0; i < len(s.Seats); i++ {
		p := s.Seats[(start+i)%len(s.Seats)]
		if pred(p) {
			return p
		}
	}
	return nil
}

// sortSeats restores ascending seat order after insertion.
func (s *State) sortSeats() {
	sort.Slice(s.Seats, func(i, j int) bool { return s.Seats[i].Seat < s.Seats[j].Seat })
}

func (s *State) canActCount() int {
	n := 0
	for _, p := range s.Seats {
		if p.canAct() {
			n++
		}
	}
	return n
}

func (s *State) nonFoldedInHand() []*Player {
	var out []*Player
	for _, p := range s.Seats {
		if p.InHand() && !p.Folded {
			out = append(out, p)
		}
	}
	return out
}

// PlayersWithChips counts seated players holding a nonzero stack.
func (s *State) PlayersWithChips() int {
	n := 0
	for _, p := range s.Seats {
		if p.Stack > 0 {
			n++
		}
	}
	return n
}

// ReadyCount counts seated players eligible for the next hand.
func (s *State) ReadyCount() int {
	n := 0
	for _, p := range s.Seats {
		if p.eligible() {
			n++
		}
	}
	return n
}

// eligible reports whether the player would be dealt into a new hand.
func (p *Player) eligible() bool {
	return p.Role == RolePlayer && !p.Left && p.Ready && p.Stack > 0
}

// Validate checks the structural invariants of the state. It exists for
// debugging and property tests; a healthy engine never produces a state
// that fails it.
func (s *State) Validate() error {
	seen := make(map[int]bool)
	var contributed int64
	for _, p := range s.Seats {
		if p.Seat < 0 || p.Seat >= s.Config.MaxSeats {
			return fmt.Errorf("engine: player %s has seat %d out of range", p.ID, p.Seat)
		}
		if seen[p.Seat] {
			return fmt.Errorf("engine: duplicate seat %d", p.Seat)
		}
		seen[p.Seat] = true
		if p.Stack < 0 {
			return fmt.Errorf("engine: player %s has negative stack", p.ID)
		}
		if p.Stack == 0 && p.StreetBet > 0 && !p.AllIn {
			return fmt.Errorf("engine: player %s has zero stack and a live bet but is not all-in", p.ID)
		}
		contributed += p.HandBet
	}
	if s.HandInProgress && s.Pot != contributed {
		return fmt.Errorf("engine: pot %d does not match contributions %d", s.Pot, contributed)
	}
	if s.HandInProgress {
		if err := s.validateCardPartition(); err != nil {
			return err
		}
		want, ok := communityCount(s.Stage)
		if ok && len(s.Community) != want {
			return fmt.Errorf("engine: stage %s has %d community cards, want %d", s.Stage, len(s.Community), want)
		}
		if s.Stage == StageShowdown && (len(s.Community) < 3 || len(s.Community) > 5) {
			return fmt.Errorf("engine: showdown with %d community cards", len(s.Community))
		}
	}
	return nil
}

func (s *State) validateCardPartition() error {
	seen := make(map[poker.Card]bool, 52)
	count := 0
	add := func(cards []poker.Card) error {
		for _, c := range cards {
			if seen[c] {
				return fmt.Errorf("engine: card %v dealt twice", c)
			}
			seen[c] = true
			count++
		}
		return nil
	}
	for _, p := range s.Seats {
		if err := add(p.HoleCards); err != nil {
			return err
		}
	}
	if err := add(s.Community); err != nil {
		return err
	}
	if err := add(s.Deck); err != nil {
		return err
	}
	if count != 52 {
		return fmt.Errorf("engine: %d cards accounted for, want 52", count)
	}
	return nil
}

func communityCount(stage Stage) (int, bool) {
	switch stage {
	case StagePreFlop:
		return 0, true
	case StageFlop:
		return 3, true
	case StageTurn:
		return 4, true
	case StageRiver:
		return 5, true
	default:
		return 0, false
	}
}
