package engine

import "github.com/cardfelt/holdemd/poker"

// Membership and bookkeeping operations. These are pure like everything
// else here: the returned state is a fresh copy and the input is never
// touched.

// AddPlayer seats a new player (lowest free seat) or registers a
// spectator, and returns the new state with a PLAYER_JOINED event.
func AddPlayer(s *State, id, name string, role Role) (*State, Event, error) {
	if s.Participant(id) != nil {
		return nil, Event{}, ErrAlreadyInGame
	}

	w := s.Clone()
	seat := -1
	if role == RolePlayer {
		seat = w.lowestFreeSeat()
		if seat == -1 {
			return nil, Event{}, ErrGameFull
		}
		w.Seats = append(w.Seats, &Player{
			ID:        id,
			Name:      name,
			Seat:      seat,
			Role:      RolePlayer,
			Stack:     w.Config.StartingStack,
			Connected: true,
		})
		w.sortSeats()
	} else {
		w.Spectators = append(w.Spectators, &Player{
			ID:        id,
			Name:      name,
			Seat:      -1,
			Role:      RoleSpectator,
			Connected: true,
		})
	}

	ev := Event{Type: EventPlayerJoined, HandNumber: w.HandNum, DealerSeat: w.DealerSeat, PlayerID: id, Seat: seat}
	w.Events = append(w.Events, ev)
	return w, ev, nil
}

// RemovePlayer takes a player out of the table. Leaving mid-hand counts
// as folding the live hand: the seat is retained (marked departed) until
// the hand ends so contributed chips stay in the pot, and the fold may
// cascade into street advancement or an award.
func RemovePlayer(s *State, id string) ([]Transition, error) {
	p := s.Participant(id)
	if p == nil {
		return nil, ErrNotInGame
	}

	w := s.Clone()
	wp := w.Participant(id)
	var trs []Transition

	if wp.Role == RoleSpectator {
		w.Spectators = removeByID(w.Spectators, id)
		push(w, &trs, Event{Type: EventPlayerLeft, PlayerID: id, Seat: -1})
		return trs, nil
	}

	if w.HandInProgress && wp.InHand() && !wp.Folded {
		wp.Folded = true
		wp.Left = true
		wp.Ready = false
		resolveAfterFold(w, wp, Event{Type: EventPlayerLeft, PlayerID: id, Seat: wp.Seat}, &trs)
		return trs, nil
	}

	seat := wp.Seat
	w.Seats = removeByID(w.Seats, id)
	push(w, &trs, Event{Type: EventPlayerLeft, PlayerID: id, Seat: seat})
	return trs, nil
}

// PruneDeparted drops seats whose players left mid-hand, once no hand is
// running. The orchestrator calls it between hands.
func PruneDeparted(s *State) *State {
	w := s.Clone()
	kept := w.Seats[:0]
	for _, p := range w.Seats {
		if !p.Left {
			kept = append(kept, p)
		}
	}
	w.Seats = kept
	return w
}

// SetReady marks a seated player as ready for the next hand.
func SetReady(s *State, id string) (*State, error) {
	p := s.Participant(id)
	if p == nil || p.Role != RolePlayer {
		return nil, ErrNotInGame
	}
	w := s.Clone()
	w.Participant(id).Ready = true
	return w, nil
}

// SetConnected flips a participant's connectivity flag.
func SetConnected(s *State, id string, connected bool) (*State, error) {
	p := s.Participant(id)
	if p == nil {
		return nil, ErrNotInGame
	}
	w := s.Clone()
	w.Participant(id).Connected = connected
	return w, nil
}

// Reveal voluntarily shows a player's hole cards. Accepted from showdown
// until the next hand starts.
func Reveal(s *State, id string) (*State, Event, error) {
	p := s.Participant(id)
	if p == nil {
		return nil, Event{}, ErrNotInGame
	}
	if len(p.HoleCards) != 2 {
		return nil, Event{}, ErrInvalidAction
	}
	if s.HandInProgress && s.Stage != StageShowdown {
		return nil, Event{}, ErrInvalidAction
	}

	w := s.Clone()
	wp := w.Participant(id)
	wp.Revealed = true
	ev := Event{
		Type:       EventPlayerRevealed,
		HandNumber: w.HandNum,
		DealerSeat: w.DealerSeat,
		PlayerID:   id,
		Seat:       wp.Seat,
		Cards:      append([]poker.Card(nil), wp.HoleCards...),
	}
	w.Events = append(w.Events, ev)
	return w, ev, nil
}

// NoteTimeout records that the active player timed out and which default
// action the orchestrator substituted. The substituted action itself is
// fed through ProcessAction separately.
func NoteTimeout(s *State, id string, substituted ActionType) (*State, Event) {
	w := s.Clone()
	seat := -1
	if p := w.Participant(id); p != nil {
		seat = p.Seat
	}
	ev := Event{
		Type:       EventPlayerTimeout,
		HandNumber: w.HandNum,
		DealerSeat: w.DealerSeat,
		PlayerID:   id,
		Seat:       seat,
		Action:     substituted,
	}
	w.Events = append(w.Events, ev)
	return w, ev
}

func removeByID(players []*Player, id string) []*Player {
	out := players[:0]
	for _, p := range players {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// push appends an event to the working state's log and records a
// transition carrying a snapshot of the state after that event.
func push(w *State, trs *[]Transition, ev Event) {
	ev.HandNumber = w.HandNum
	ev.DealerSeat = w.DealerSeat
	w.Events = append(w.Events, ev)
	*trs = append(*trs, Transition{State: w.Clone(), Event: ev})
}
