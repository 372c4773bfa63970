// Package view projects ground-truth table state into what a single
// viewer is allowed to see. The engine never redacts; everything a
// client receives passes through here first.
package view

import (
	"github.com/cardfelt/holdemd/poker"

	"github.com/cardfelt/holdemd/internal/engine"
)

// PlayerView is one seat as a particular viewer sees it. HoleCards is
// nil whenever the cards are hidden from that viewer.
type PlayerView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Seat      int          `json:"seat"`
	Stack     int64        `json:"stack"`
	StreetBet int64        `json:"streetBet"`
	HandBet   int64        `json:"handBet"`
	Folded    bool         `json:"folded"`
	AllIn     bool         `json:"allIn"`
	Ready     bool         `json:"ready"`
	Connected bool         `json:"connected"`
	Revealed  bool         `json:"revealed"`
	Active    bool         `json:"active"`
	HoleCards []poker.Card `json:"holeCards,omitempty"`
}

// GameView is the full table state projected for one viewer.
type GameView struct {
	GameID         string                `json:"gameId"`
	Config         engine.Config         `json:"config"`
	HandNumber     int                   `json:"handNumber"`
	Stage          engine.Stage          `json:"stage"`
	DealerSeat     int                   `json:"dealerSeat"`
	Community      []poker.Card          `json:"community"`
	Pot            int64                 `json:"pot"`
	CurrentHighBet int64                 `json:"currentHighBet"`
	MinRaiseTo     int64                 `json:"minRaiseTo,omitempty"`
	ActivePlayerID string                `json:"activePlayerId,omitempty"`
	HandInProgress bool                  `json:"handInProgress"`
	Players        []PlayerView          `json:"players"`
	Spectators     int                   `json:"spectators"`
	YourSeat       int                   `json:"yourSeat"`
	LegalActions   []engine.ActionOption `json:"legalActions,omitempty"`

	// ActionRemainingMS accompanies LegalActions: how long the active
	// viewer has before the default action is substituted. The engine
	// has no clock, so the orchestrator fills it in after projection.
	ActionRemainingMS int64 `json:"actionRemainingMs,omitempty"`
}

// Project renders the state for the given viewer. For tables with the
// delayed visibility policy, prevFinal carries the previous hand's final
// state; spectators are shown that while a hand is running.
func Project(s *engine.State, prevFinal *engine.State, viewerID string) GameView {
	viewer := s.Participant(viewerID)
	spectating := viewer == nil || viewer.Role == engine.RoleSpectator

	if spectating && s.Config.Visibility == engine.VisibilityDelayed && s.HandInProgress {
		if prevFinal != nil {
			return Project(prevFinal, nil, viewerID)
		}
		// Nothing completed yet: show the running hand fully redacted.
	}

	v := GameView{
		GameID:         s.TableID,
		Config:         s.Config,
		HandNumber:     s.HandNum,
		Stage:          s.Stage,
		DealerSeat:     s.DealerSeat,
		Community:      append([]poker.Card{}, s.Community...),
		Pot:            s.Pot,
		CurrentHighBet: s.CurrentHighBet,
		ActivePlayerID: s.ActivePlayerID,
		HandInProgress: s.HandInProgress,
		Spectators:     len(s.Spectators),
		YourSeat:       -1,
	}
	if viewer != nil && !spectating {
		v.YourSeat = viewer.Seat
	}
	for _, p := range s.Seats {
		pv := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Seat:      p.Seat,
			Stack:     p.Stack,
			StreetBet: p.StreetBet,
			HandBet:   p.HandBet,
			Folded:    p.Folded,
			AllIn:     p.AllIn,
			Ready:     p.Ready,
			Connected: p.Connected,
			Revealed:  p.Revealed,
			Active:    s.ActivePlayerID == p.ID,
		}
		if cardsVisible(s, p, viewerID, spectating) {
			pv.HoleCards = append([]poker.Card(nil), p.HoleCards...)
		}
		v.Players = append(v.Players, pv)
	}
	if s.ActivePlayerID == viewerID {
		v.LegalActions = engine.LegalActions(s, viewerID)
		for _, o := range v.LegalActions {
			if o.Type == engine.ActionRaise {
				v.MinRaiseTo = o.Min
			}
		}
	}
	return v
}

// cardsVisible decides whether one seat's hole cards are shown to the
// viewer. Own cards always; revealed cards always; live hands of other
// players only once showdown is reached, with the immediate policy
// opening everything to spectators.
func cardsVisible(s *engine.State, p *engine.Player, viewerID string, spectating bool) bool {
	if len(p.HoleCards) == 0 {
		return false
	}
	if p.ID == viewerID {
		return true
	}
	if p.Revealed {
		return true
	}
	if spectating && s.Config.Visibility == engine.VisibilityImmediate {
		return true
	}
	return s.Stage == engine.StageShowdown && !p.Folded
}

// ProjectEvent redacts an engine event for the given viewer. Only DEAL
// events carry private information: every other event is public as-is.
func ProjectEvent(s *engine.State, ev engine.Event, viewerID string) engine.Event {
	if ev.Type != engine.EventDeal {
		return ev
	}
	viewer := s.Participant(viewerID)
	spectating := viewer == nil || viewer.Role == engine.RoleSpectator
	seeAll := spectating && s.Config.Visibility == engine.VisibilityImmediate

	out := ev
	out.Deals = make([]engine.HoleDeal, len(ev.Deals))
	for i, d := range ev.Deals {
		out.Deals[i] = engine.HoleDeal{PlayerID: d.PlayerID, Seat: d.Seat}
		if d.PlayerID == viewerID || seeAll {
			out.Deals[i].Cards = append([]poker.Card(nil), d.Cards...)
		}
	}
	return out
}
