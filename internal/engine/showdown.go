package engine

import (
	"sort"

	"github.com/cardfelt/holdemd/poker"
)

// Pot is one contested pot. Index 0 is the main pot; side pots follow in
// the order players went all-in.
type Pot struct {
	Amount   int64    `json:"amount"`
	Eligible []string `json:"eligible"`
}

// Pots splits the hand's contributions into main and side pots. Each
// distinct all-in total among non-folded players caps one pot; folded
// chips are swept into the pots they fall under. Empty pots are omitted.
func Pots(s *State) []Pot {
	live := s.nonFoldedInHand()
	if len(live) == 0 {
		return nil
	}

	var liveMax int64
	for _, p := range live {
		liveMax = max64(liveMax, p.HandBet)
	}
	capSet := make(map[int64]bool)
	for _, p := range live {
		if p.AllIn && p.HandBet < liveMax {
			capSet[p.HandBet] = true
		}
	}
	caps := make([]int64, 0, len(capSet)+1)
	for c := range capSet {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	caps = append(caps, liveMax)

	var pots []Pot
	var prev int64
	for i, level := range caps {
		var amount int64
		for _, p := range s.Seats {
			take := min64(p.HandBet, level) - prev
			if i == len(caps)-1 {
				// Deepest pot absorbs anything above the last cap, so
				// every contributed chip lands in exactly one pot.
				take = p.HandBet - prev
			}
			if take > 0 {
				amount += take
			}
		}
		var eligible []string
		for _, p := range live {
			if p.HandBet > prev {
				eligible = append(eligible, p.ID)
			}
		}
		if amount > 0 {
			pots = append(pots, Pot{Amount: amount, Eligible: eligible})
		}
		prev = level
	}
	return pots
}

// runShowdown evaluates the live hands, awards every pot and closes the
// hand. Community is always complete here; a hand that empties to one
// player ends through awardUncontested instead.
func runShowdown(w *State, trs *[]Transition) {
	w.Stage = StageShowdown
	w.ActivePlayerID = ""

	live := w.nonFoldedInHand()
	values := make(map[string]poker.HandValue, len(live))
	hands := make([]ShowdownHand, 0, len(live))
	for _, p := range live {
		cards := make([]poker.Card, 0, 7)
		cards = append(cards, p.HoleCards...)
		cards = append(cards, w.Community...)
		v := poker.Evaluate(cards)
		values[p.ID] = v
		hands = append(hands, ShowdownHand{
			PlayerID:    p.ID,
			Seat:        p.Seat,
			Cards:       append([]poker.Card(nil), p.HoleCards...),
			Category:    v.Category.String(),
			Description: v.Describe(),
		})
	}
	push(w, trs, Event{Type: EventShowdown, Hands: hands, Pot: w.Pot, Seat: -1})

	total := w.Pot
	results := make([]PotResult, 0, 4)
	for _, pot := range Pots(w) {
		winners := bestHands(w, pot.Eligible, values)
		payouts := w.splitPot(pot.Amount, winners)
		for id, amt := range payouts {
			w.Participant(id).Stack += amt
		}
		results = append(results, PotResult{
			Amount:   pot.Amount,
			Eligible: pot.Eligible,
			Winners:  winners,
			Payouts:  payouts,
		})
	}

	finishHand(w)
	push(w, trs, Event{Type: EventHandEnd, Pots: results, Pot: total, Seat: -1})
}

// awardUncontested gives the whole pot to the last non-folded player.
// No showdown, no hand evaluation, and the survivor's cards stay hidden
// unless they reveal voluntarily.
func awardUncontested(w *State, trs *[]Transition) {
	survivor := w.nonFoldedInHand()[0]
	total := w.Pot
	survivor.Stack += total
	result := PotResult{
		Amount:   total,
		Eligible: []string{survivor.ID},
		Winners:  []string{survivor.ID},
		Payouts:  map[string]int64{survivor.ID: total},
	}
	finishHand(w)
	push(w, trs, Event{Type: EventHandEnd, Pots: []PotResult{result}, Pot: total, Seat: -1})
}

// bestHands returns the eligible player ids holding the strongest hand,
// in seat order starting left of the dealer.
func bestHands(w *State, eligible []string, values map[string]poker.HandValue) []string {
	var winners []string
	for _, id := range eligible {
		if len(winners) == 0 {
			winners = []string{id}
			continue
		}
		switch values[id].Compare(values[winners[0]]) {
		case 1:
			winners = []string{id}
		case 0:
			winners = append(winners, id)
		}
	}
	sort.Slice(winners, func(i, j int) bool {
		return w.seatDistance(winners[i]) < w.seatDistance(winners[j])
	})
	return winners
}

// seatDistance orders seats clockwise from the dealer's left.
func (s *State) seatDistance(id string) int {
	p := s.Participant(id)
	d := p.Seat - s.DealerSeat
	if d <= 0 {
		d += s.Config.MaxSeats
	}
	return d
}

// splitPot divides an amount among tied winners. The odd chips go to the
// winner closest to the dealer's left.
func (s *State) splitPot(amount int64, winners []string) map[string]int64 {
	share := amount / int64(len(winners))
	rem := amount % int64(len(winners))
	payouts := make(map[string]int64, len(winners))
	for i, id := range winners {
		payouts[id] = share
		if int64(i) < rem {
			payouts[id]++
		}
	}
	return payouts
}

// finishHand closes out the hand. Hole cards and folded flags are kept
// until the next hand starts so reveals and delayed views can still see
// them.
func finishHand(w *State) {
	w.HandInProgress = false
	w.ActivePlayerID = ""
	w.Pot = 0
	w.CurrentHighBet = 0
	w.LastRaise = 0
	for _, p := range w.Seats {
		p.StreetBet = 0
		p.HandBet = 0
	}
}
