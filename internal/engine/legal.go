package engine

// ActionOption describes one legal action and its amount bounds. For
// amount-less actions Min and Max are zero; for CALL both carry the
// (possibly short) call cost; for BET and RAISE they bound the target
// street bet.
type ActionOption struct {
	Type ActionType `json:"type"`
	Min  int64      `json:"min,omitempty"`
	Max  int64      `json:"max,omitempty"`
}

// LegalActions lists what the given player may do right now. Empty when
// it is not their turn.
func LegalActions(s *State, playerID string) []ActionOption {
	if !s.HandInProgress || s.ActivePlayerID != playerID {
		return nil
	}
	p := s.Participant(playerID)
	if p == nil || !p.canAct() {
		return nil
	}

	toCall := s.CurrentHighBet - p.StreetBet
	total := p.Stack + p.StreetBet

	opts := []ActionOption{{Type: ActionFold}}
	if toCall == 0 {
		opts = append(opts, ActionOption{Type: ActionCheck})
	} else {
		cost := min64(toCall, p.Stack)
		opts = append(opts, ActionOption{Type: ActionCall, Min: cost, Max: cost})
	}
	if s.CurrentHighBet == 0 {
		opts = append(opts, ActionOption{Type: ActionBet, Min: min64(s.Config.BigBlind, total), Max: total})
	} else if !p.Acted && total > s.CurrentHighBet {
		opts = append(opts, ActionOption{Type: ActionRaise, Min: min64(s.minRaiseTo(), total), Max: total})
	}
	// ALL_IN is shorthand for whichever of the above it resolves to, so
	// it is legal exactly when that action is.
	if s.CurrentHighBet == 0 || total <= s.CurrentHighBet || !p.Acted {
		opts = append(opts, ActionOption{Type: ActionAllIn, Min: total, Max: total})
	}
	return opts
}
