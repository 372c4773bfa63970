package engine

import "github.com/cardfelt/holdemd/poker"

// StartHand begins a new hand: rotates the dealer, posts blinds, deals
// hole cards and opens pre-flop betting. A deck permutation may be
// injected for deterministic play; pass nil to shuffle.
//
// The returned transitions are HAND_START, BLINDS_POSTED and DEAL, each
// snapshotting the state after that step, followed by any street or
// showdown transitions when nobody is left with a betting decision
// (everyone all-in from the blinds).
func StartHand(s *State, injected []poker.Card) ([]Transition, error) {
	if s.HandInProgress {
		return nil, ErrHandRunning
	}
	eligible := 0
	for _, p := range s.Seats {
		if p.eligible() {
			eligible++
		}
	}
	if eligible < 2 {
		return nil, ErrNotEnough
	}

	var deck *poker.Deck
	if injected != nil {
		d, err := poker.NewDeckFromCards(injected)
		if err != nil {
			return nil, err
		}
		deck = d
	} else {
		deck = poker.NewDeck()
	}

	w := s.Clone()
	w.Events = nil
	w.HandNum++
	w.Stage = StagePreFlop
	w.Community = nil
	w.Pot = 0
	w.CurrentHighBet = 0
	w.LastRaise = 0
	w.ActivePlayerID = ""
	w.HandInProgress = true
	for _, p := range w.Seats {
		p.StreetBet = 0
		p.HandBet = 0
		p.Folded = false
		p.AllIn = false
		p.Revealed = false
		p.Acted = false
		p.HoleCards = nil
	}

	inHand := func(p *Player) bool { return p.eligible() }
	dealer := w.nextSeat(w.DealerSeat, inHand)
	w.DealerSeat = dealer.Seat

	var trs []Transition
	push(w, &trs, Event{Type: EventHandStart, Seat: dealer.Seat, PlayerID: dealer.ID})

	// Heads-up the dealer posts the small blind and acts first pre-flop.
	var sb, bb *Player
	if eligible == 2 {
		sb = dealer
		bb = w.nextSeat(dealer.Seat, inHand)
	} else {
		sb = w.nextSeat(dealer.Seat, inHand)
		bb = w.nextSeat(sb.Seat, inHand)
	}
	posts := []BlindPost{
		postBlind(w, sb, w.Config.SmallBlind, false),
		postBlind(w, bb, w.Config.BigBlind, true),
	}
	w.CurrentHighBet = w.Config.BigBlind
	w.LastRaise = w.Config.BigBlind
	push(w, &trs, Event{Type: EventBlindsPosted, Blinds: posts, Pot: w.Pot, Seat: -1})

	// Two passes of one card each, starting left of the dealer.
	order := w.handOrder(dealer.Seat, inHand)
	for pass := 0; pass < 2; pass++ {
		for _, p := range order {
			c, _ := deck.DealOne()
			p.HoleCards = append(p.HoleCards, c)
		}
	}
	w.Deck = deck.Remaining()
	deals := make([]HoleDeal, 0, len(order))
	for _, p := range order {
		deals = append(deals, HoleDeal{
			PlayerID: p.ID,
			Seat:     p.Seat,
			Cards:    append([]poker.Card(nil), p.HoleCards...),
		})
	}

	if first := w.nextSeat(bb.Seat, (*Player).canAct); first != nil {
		w.ActivePlayerID = first.ID
	}
	push(w, &trs, Event{Type: EventDeal, Deals: deals, Seat: -1})

	// Blinds can leave nobody with a real decision (all-in all around, or
	// one live player already covering the high bet).
	if w.skipBetting() {
		w.ActivePlayerID = ""
		advanceStreets(w, &trs)
	}
	return trs, nil
}

// postBlind deducts a (possibly capped) blind.
func postBlind(w *State, p *Player, amount int64, big bool) BlindPost {
	paid := min64(amount, p.Stack)
	commit(w, p, paid)
	return BlindPost{PlayerID: p.ID, Seat: p.Seat, Amount: paid, Big: big, AllIn: p.AllIn}
}

// handOrder collects the hand's participants in seat order starting left
// of the dealer.
func (s *State) handOrder(dealerSeat int, pred func(*Player) bool) []*Player {
	var out []*Player
	p := s.nextSeat(dealerSeat, pred)
	for p != nil {
		out = append(out, p)
		np := s.nextSeat(p.Seat, pred)
		if np == nil || np == out[0] {
			break
		}
		p = np
	}
	return out
}

// ProcessAction applies one betting action by the active player. On any
// validation error the input state is unchanged and no transition is
// produced. On success the first transition is the PLAYER_ACTION event,
// followed by whatever it cascades into: street deals, showdown, award.
func ProcessAction(s *State, playerID string, action ActionType, amount int64) ([]Transition, error) {
	if !s.HandInProgress {
		return nil, ErrInvalidAction
	}
	p := s.Participant(playerID)
	if p == nil {
		return nil, ErrNotInGame
	}
	if s.ActivePlayerID != playerID {
		return nil, ErrOutOfTurn
	}
	if amount < 0 || amount > MaxChips {
		return nil, ErrInvalidAmount
	}
	if err := validateAction(s, p, action, amount); err != nil {
		return nil, err
	}

	w := s.Clone()
	wp := w.Participant(playerID)
	paid := applyAction(w, wp, action, amount)

	var trs []Transition
	ev := Event{
		Type:      EventPlayerAction,
		PlayerID:  playerID,
		Seat:      wp.Seat,
		Action:    action,
		Amount:    paid,
		StreetBet: wp.StreetBet,
		Pot:       w.Pot,
	}

	switch {
	case len(w.nonFoldedInHand()) == 1:
		w.ActivePlayerID = ""
		push(w, &trs, ev)
		awardUncontested(w, &trs)
	case w.roundClosed():
		w.ActivePlayerID = ""
		push(w, &trs, ev)
		advanceStreets(w, &trs)
	default:
		if next := w.nextSeat(wp.Seat, pendingActor(w)); next != nil {
			w.ActivePlayerID = next.ID
			push(w, &trs, ev)
		} else {
			// Nobody owes a decision but bets are uneven only against
			// all-in players: run the board out.
			w.ActivePlayerID = ""
			push(w, &trs, ev)
			advanceStreets(w, &trs)
		}
	}
	return trs, nil
}

// resolveAfterFold finishes the turn of a player whose fold came from
// leaving the table rather than through ProcessAction. It pushes the
// PLAYER_LEFT event once the turn has moved on, then any cascades.
func resolveAfterFold(w *State, p *Player, left Event, trs *[]Transition) {
	if len(w.nonFoldedInHand()) == 1 {
		w.ActivePlayerID = ""
		push(w, trs, left)
		awardUncontested(w, trs)
		return
	}
	if w.ActivePlayerID != p.ID {
		push(w, trs, left)
		return
	}
	if !w.roundClosed() {
		if next := w.nextSeat(p.Seat, pendingActor(w)); next != nil {
			w.ActivePlayerID = next.ID
			push(w, trs, left)
			return
		}
	}
	w.ActivePlayerID = ""
	push(w, trs, left)
	advanceStreets(w, trs)
}

// pendingActor matches players who still owe a decision this street.
func pendingActor(w *State) func(*Player) bool {
	return func(p *Player) bool {
		return p.canAct() && (!p.Acted || p.StreetBet < w.CurrentHighBet)
	}
}

// roundClosed reports whether the betting round is complete: every
// player who can act has acted since the last full raise and matches the
// high bet.
func (s *State) roundClosed() bool {
	for _, p := range s.Seats {
		if p.canAct() && (!p.Acted || p.StreetBet < s.CurrentHighBet) {
			return false
		}
	}
	return true
}

// skipBetting reports whether the current street has no betting decision
// left even though nobody has acted (all-in situations).
func (s *State) skipBetting() bool {
	n := 0
	for _, p := range s.Seats {
		if p.canAct() {
			if p.StreetBet < s.CurrentHighBet {
				return false
			}
			n++
		}
	}
	return n <= 1
}

func validateAction(s *State, p *Player, action ActionType, amount int64) error {
	toCall := s.CurrentHighBet - p.StreetBet
	total := p.Stack + p.StreetBet

	switch action {
	case ActionFold:
		return nil

	case ActionCheck:
		if toCall != 0 {
			return ErrInvalidAction
		}
		return nil

	case ActionCall:
		if toCall <= 0 {
			return ErrInvalidAction
		}
		return nil

	case ActionBet:
		if s.CurrentHighBet != 0 {
			return ErrInvalidAction
		}
		if amount <= 0 || amount > total {
			return ErrInvalidAmount
		}
		if amount < s.Config.BigBlind && amount != total {
			return ErrInvalidAmount
		}
		return nil

	case ActionRaise:
		if s.CurrentHighBet == 0 {
			return ErrInvalidAction
		}
		if p.Acted {
			// A short all-in since this player last acted does not
			// reopen the betting.
			return ErrInvalidAction
		}
		if amount <= s.CurrentHighBet || amount > total {
			return ErrInvalidAmount
		}
		if amount < s.minRaiseTo() && amount != total {
			return ErrInvalidAmount
		}
		return nil

	case ActionAllIn:
		if p.Stack <= 0 {
			return ErrInvalidAction
		}
		if s.CurrentHighBet > 0 && total > s.CurrentHighBet && p.Acted {
			return ErrInvalidAction
		}
		return nil
	}
	return ErrInvalidAction
}

// minRaiseTo is the smallest legal full-raise target street bet.
func (s *State) minRaiseTo() int64 {
	return s.CurrentHighBet + max64(s.LastRaise, s.Config.BigBlind)
}

// applyAction mutates the working state for a validated action and
// returns the chips paid.
func applyAction(w *State, p *Player, action ActionType, amount int64) int64 {
	toCall := w.CurrentHighBet - p.StreetBet
	total := p.Stack + p.StreetBet
	p.Acted = true

	switch action {
	case ActionFold:
		p.Folded = true
		return 0

	case ActionCheck:
		return 0

	case ActionCall:
		// A short call puts the player all-in for less.
		return commit(w, p, min64(toCall, p.Stack))

	case ActionBet:
		paid := commit(w, p, amount-p.StreetBet)
		w.CurrentHighBet = p.StreetBet
		w.LastRaise = p.StreetBet
		reopen(w, p)
		return paid

	case ActionRaise:
		return raiseTo(w, p, amount)

	case ActionAllIn:
		switch {
		case w.CurrentHighBet == 0:
			paid := commit(w, p, p.Stack)
			w.CurrentHighBet = p.StreetBet
			w.LastRaise = p.StreetBet
			reopen(w, p)
			return paid
		case total <= w.CurrentHighBet:
			return commit(w, p, p.Stack)
		default:
			return raiseTo(w, p, total)
		}
	}
	return 0
}

// raiseTo commits chips up to the target street bet. A full raise resets
// everyone else's acted flag and moves the raise increment; a short
// all-in raise only lifts the high bet.
func raiseTo(w *State, p *Player, target int64) int64 {
	full := target >= w.minRaiseTo()
	paid := commit(w, p, target-p.StreetBet)
	if full {
		w.LastRaise = p.StreetBet - w.CurrentHighBet
		w.CurrentHighBet = p.StreetBet
		reopen(w, p)
	} else if p.StreetBet > w.CurrentHighBet {
		w.CurrentHighBet = p.StreetBet
	}
	return paid
}

// commit moves chips from the player's stack into the pot.
func commit(w *State, p *Player, pay int64) int64 {
	p.Stack -= pay
	p.StreetBet += pay
	p.HandBet += pay
	w.Pot += pay
	if p.Stack == 0 {
		p.AllIn = true
	}
	return pay
}

// reopen clears everyone else's acted flag after a full bet or raise.
func reopen(w *State, except *Player) {
	for _, q := range w.Seats {
		if q != except {
			q.Acted = false
		}
	}
}

// advanceStreets deals the next street after a closed round, and keeps
// dealing (fast-forward) while nobody has a betting decision left. Past
// the river it runs the showdown.
func advanceStreets(w *State, trs *[]Transition) {
	for {
		for _, p := range w.Seats {
			p.StreetBet = 0
			p.Acted = false
		}
		w.CurrentHighBet = 0
		w.LastRaise = 0

		if w.Stage == StageRiver {
			runShowdown(w, trs)
			return
		}

		var evType EventType
		switch w.Stage {
		case StagePreFlop:
			w.Stage = StageFlop
			evType = EventFlop
			w.dealCommunity(3)
		case StageFlop:
			w.Stage = StageTurn
			evType = EventTurn
			w.dealCommunity(1)
		case StageTurn:
			w.Stage = StageRiver
			evType = EventRiver
			w.dealCommunity(1)
		}

		w.ActivePlayerID = ""
		if w.canActCount() >= 2 {
			if first := w.nextSeat(w.DealerSeat, (*Player).canAct); first != nil {
				w.ActivePlayerID = first.ID
			}
		}
		push(w, trs, Event{
			Type:  evType,
			Cards: append([]poker.Card(nil), w.Community...),
			Pot:   w.Pot,
			Seat:  -1,
		})
		if w.ActivePlayerID != "" {
			return
		}
	}
}

// dealCommunity moves n cards from the deck onto the board. No burn
// cards: the deck is a committed permutation.
func (s *State) dealCommunity(n int) {
	s.Community = append(s.Community, s.Deck[:n]...)
	s.Deck = s.Deck[n:]
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
