package engine

import "github.com/cardfelt/holdemd/poker"

// EventType identifies an engine event.
type EventType string

const (
	EventHandStart      EventType = "HAND_START"
	EventBlindsPosted   EventType = "BLINDS_POSTED"
	EventDeal           EventType = "DEAL"
	EventPlayerAction   EventType = "PLAYER_ACTION"
	EventPlayerTimeout  EventType = "PLAYER_TIMEOUT"
	EventFlop           EventType = "FLOP"
	EventTurn           EventType = "TURN"
	EventRiver          EventType = "RIVER"
	EventShowdown       EventType = "SHOWDOWN"
	EventHandEnd        EventType = "HAND_END"
	EventPlayerJoined   EventType = "PLAYER_JOINED"
	EventPlayerLeft     EventType = "PLAYER_LEFT"
	EventPlayerRevealed EventType = "PLAYER_REVEALED"
)

// BlindPost records a single blind deduction.
type BlindPost struct {
	PlayerID string `json:"playerId"`
	Seat     int    `json:"seat"`
	Amount   int64  `json:"amount"`
	Big      bool   `json:"big"`
	AllIn    bool   `json:"allIn,omitempty"`
}

// HoleDeal records two hole cards going to one player. The view layer
// redacts deals that do not belong to the receiving viewer.
type HoleDeal struct {
	PlayerID string       `json:"playerId"`
	Seat     int          `json:"seat"`
	Cards    []poker.Card `json:"cards"`
}

// ShowdownHand describes one revealed hand at showdown.
type ShowdownHand struct {
	PlayerID    string       `json:"playerId"`
	Seat        int          `json:"seat"`
	Cards       []poker.Card `json:"cards"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
}

// PotResult describes one awarded pot: index 0 is the main pot.
type PotResult struct {
	Amount   int64            `json:"amount"`
	Eligible []string         `json:"eligible"`
	Winners  []string         `json:"winners"`
	Payouts  map[string]int64 `json:"payouts"`
}

// Event is a single entry in the ordered hand-event log. Only the fields
// relevant to the event type are populated.
type Event struct {
	Type       EventType      `json:"type"`
	HandNumber int            `json:"handNumber,omitempty"`
	DealerSeat int            `json:"dealerSeat"`
	PlayerID   string         `json:"playerId,omitempty"`
	Seat       int            `json:"seat"`
	Action     ActionType     `json:"action,omitempty"`
	Amount     int64          `json:"amount,omitempty"`
	StreetBet  int64          `json:"streetBet,omitempty"`
	Pot        int64          `json:"pot,omitempty"`
	Cards      []poker.Card   `json:"cards,omitempty"`
	Blinds     []BlindPost    `json:"blinds,omitempty"`
	Deals      []HoleDeal     `json:"deals,omitempty"`
	Hands      []ShowdownHand `json:"hands,omitempty"`
	Pots       []PotResult    `json:"pots,omitempty"`
}
