package engine

import "errors"

// Engine errors are pure classifications: they never carry partial state
// and a failed operation leaves the input state untouched.
var (
	ErrOutOfTurn     = errors.New("engine: not this player's turn")
	ErrInvalidAction = errors.New("engine: action not legal in this state")
	ErrInvalidAmount = errors.New("engine: amount not legal for this action")
	ErrGameFull      = errors.New("engine: table is full")
	ErrAlreadyInGame = errors.New("engine: player already at table")
	ErrNotInGame     = errors.New("engine: player not at table")
	ErrNotEnough     = errors.New("engine: not enough eligible players")
	ErrHandRunning   = errors.New("engine: hand already in progress")
	ErrStaleHand     = errors.New("engine: action names a hand that is not the current one")
)

// Code maps an engine error to its wire error code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrOutOfTurn), errors.Is(err, ErrStaleHand):
		return "OUT_OF_TURN"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrGameFull):
		return "GAME_FULL"
	case errors.Is(err, ErrAlreadyInGame):
		return "ALREADY_IN_GAME"
	case errors.Is(err, ErrNotInGame):
		return "NOT_IN_GAME"
	default:
		return "INVALID_ACTION"
	}
}
