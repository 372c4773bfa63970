package bot

import (
	"fmt"
	"math/rand"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/view"
)

// Strategy picks one action from a decision the bot is facing. The view
// always carries at least one legal action when Act is called.
type Strategy interface {
	Act(v view.GameView, rng *rand.Rand) (engine.ActionType, int64)
}

// ForName resolves a configured strategy name.
func ForName(name string) (Strategy, error) {
	switch name {
	case "call":
		return Caller{}, nil
	case "rand":
		return Random{}, nil
	}
	return nil, fmt.Errorf("bot: unknown strategy %q", name)
}

// Caller is a calling station: it checks when free, calls when facing a
// bet, and never raises.
type Caller struct{}

// Act implements Strategy.
func (Caller) Act(v view.GameView, _ *rand.Rand) (engine.ActionType, int64) {
	var canCall bool
	for _, opt := range v.LegalActions {
		switch opt.Type {
		case engine.ActionCheck:
			return engine.ActionCheck, 0
		case engine.ActionCall:
			canCall = true
		}
	}
	if canCall {
		return engine.ActionCall, 0
	}
	return engine.ActionFold, 0
}

// Random picks uniformly among the legal actions, with a uniform amount
// for bets and raises. Useful for soak testing the table.
type Random struct{}

// Act implements Strategy.
func (Random) Act(v view.GameView, rng *rand.Rand) (engine.ActionType, int64) {
	opt := v.LegalActions[rng.Intn(len(v.LegalActions))]
	var amount int64
	if opt.Type == engine.ActionBet || opt.Type == engine.ActionRaise {
		amount = opt.Min
		if opt.Max > opt.Min {
			amount += rng.Int63n(opt.Max - opt.Min + 1)
		}
	}
	return opt.Type, amount
}
