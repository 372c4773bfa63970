// Package protocol defines the JSON wire format: a thin envelope with an
// action name and an action-specific payload. The same envelope shape is
// used in both directions.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/view"
)

// Client-to-server actions.
const (
	ActionIdentify     = "identify"
	ActionListGames    = "listGames"
	ActionJoinGame     = "joinGame"
	ActionReady        = "ready"
	ActionPlayerAction = "playerAction"
	ActionRevealCards  = "revealCards"
	ActionChat         = "chat"
	ActionLeaveGame    = "leaveGame"
)

// Server-to-client actions.
const (
	ActionIdentified  = "identified"
	ActionGameList    = "gameList"
	ActionGameJoined  = "gameJoined"
	ActionGameState   = "gameState"
	ActionTimeWarning = "timeWarning"
	ActionGameOver    = "gameOver"
	ActionChatMessage = "chatMessage"
	ActionError       = "error"
)

// Error codes carried by error payloads.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeNotIdentified  = "NOT_IDENTIFIED"
	CodeGameNotFound   = "GAME_NOT_FOUND"
	CodeInvalidAction  = "INVALID_ACTION"
	CodeOutOfTurn      = "OUT_OF_TURN"
	CodeInvalidAmount  = "INVALID_AMOUNT"
	CodeNotInGame      = "NOT_IN_GAME"
	CodeGameFull       = "GAME_FULL"
	CodeAlreadyInGame  = "ALREADY_IN_GAME"
)

// MaxChatLength bounds a single chat message.
const MaxChatLength = 500

// Envelope is the outer frame of every message.
type Envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Identify is the first message a client must send.
type Identify struct {
	Name  string `json:"name,omitempty"`
	Token string `json:"token,omitempty"` // reconnect token from a prior session
}

// JoinGame requests a seat or a spectator slot.
type JoinGame struct {
	GameID string      `json:"gameId"`
	Role   engine.Role `json:"role,omitempty"` // defaults to player
}

// PlayerAction is a betting decision. HandNumber names the hand the
// decision belongs to, so an action delayed in transit can never land
// on a later hand. Amount is the target street bet for BET and RAISE
// and ignored otherwise.
type PlayerAction struct {
	HandNumber int               `json:"handNumber"`
	Action     engine.ActionType `json:"action"`
	Amount     int64             `json:"amount,omitempty"`
}

// RevealCards asks to show the sender's hole cards during the reveal
// window of the named hand.
type RevealCards struct {
	HandNumber int `json:"handNumber"`
}

// Chat carries a table chat line.
type Chat struct {
	Text string `json:"text"`
}

// Identified confirms identity and hands out the next reconnect token.
// Tokens are single-use: each successful identify rotates it.
type Identified struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Token    string `json:"token"`
	Resumed  bool   `json:"resumed,omitempty"`
}

// GameSummary is one lobby listing entry.
type GameSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Players        int    `json:"players"`
	Bots           int    `json:"bots"`
	MaxSeats       int    `json:"maxSeats"`
	Spectators     int    `json:"spectators"`
	SmallBlind     int64  `json:"smallBlind"`
	BigBlind       int64  `json:"bigBlind"`
	HandInProgress bool   `json:"handInProgress"`
}

// GameList answers listGames.
type GameList struct {
	Games []GameSummary `json:"games"`
}

// GameJoined confirms a join with the joiner's first view of the table.
type GameJoined struct {
	GameID string        `json:"gameId"`
	View   view.GameView `json:"view"`
}

// GameState delivers one engine event with the viewer's projected state
// after it. A reconnect resync is a single gameState whose event is a
// synthesized PLAYER_JOINED over the full current view.
type GameState struct {
	GameID string         `json:"gameId"`
	Event  *engine.Event  `json:"event,omitempty"`
	View   *view.GameView `json:"view,omitempty"`
}

// TimeWarning tells the active player how long they have left.
type TimeWarning struct {
	GameID      string `json:"gameId"`
	PlayerID    string `json:"playerId"`
	RemainingMS int64  `json:"remainingMs"`
}

// Standing is one row of the final table order: highest stack first,
// ties broken by seat.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Seat     int    `json:"seat"`
	Stack    int64  `json:"stack"`
}

// GameOver announces table termination with the final standings.
type GameOver struct {
	GameID    string     `json:"gameId"`
	Reason    string     `json:"reason"`
	Winner    string     `json:"winner,omitempty"`
	Standings []Standing `json:"standings"`
}

// ChatMessage fans a chat line out to the table, tagged with the
// sender's role.
type ChatMessage struct {
	GameID   string      `json:"gameId"`
	PlayerID string      `json:"playerId"`
	Name     string      `json:"name"`
	Role     engine.Role `json:"role"`
	Text     string      `json:"text"`
}

// Error reports a rejected message. Rejections never advance game state.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode frames a payload under the given action.
func Encode(action string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", action, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Action: action, Payload: raw})
}

// Decode parses an envelope and checks it names an action.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if env.Action == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope missing action")
	}
	return env, nil
}

// Payload unmarshals an envelope's payload into the expected type. An
// absent payload yields the zero value.
func Payload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("protocol: bad %s payload: %w", env.Action, err)
	}
	return out, nil
}

// ErrorFor maps an engine error onto a wire error payload.
func ErrorFor(err error) Error {
	return Error{Code: engine.Code(err), Message: err.Error()}
}
