package bot

import (
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/internal/view"
)

// harness captures everything the bot dispatches and feeds it server
// messages, standing in for the full service.
type harness struct {
	t   *testing.T
	bot *Bot
	out chan protocol.Envelope
}

func newHarness(t *testing.T, strategy Strategy) *harness {
	t.Helper()
	h := &harness{t: t, out: make(chan protocol.Envelope, 16)}
	h.bot = New(Options{
		Name:     "robby",
		GameID:   "g1",
		Strategy: strategy,
		Logger:   log.New(os.Stderr),
		Seed:     1,
		Dispatch: func(data []byte) {
			env, err := protocol.Decode(data)
			require.NoError(t, err)
			h.out <- env
		},
	})
	return h
}

func (h *harness) feed(action string, payload any) {
	h.t.Helper()
	data, err := protocol.Encode(action, payload)
	require.NoError(h.t, err)
	require.NoError(h.t, h.bot.Send(data))
}

func (h *harness) expect(action string) protocol.Envelope {
	h.t.Helper()
	select {
	case env := <-h.out:
		require.Equal(h.t, action, env.Action)
		return env
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for %s", action)
		return protocol.Envelope{}
	}
}

func (h *harness) expectSilence() {
	h.t.Helper()
	select {
	case env := <-h.out:
		h.t.Fatalf("unexpected message %s", env.Action)
	case <-time.After(50 * time.Millisecond):
	}
}

func decisionView(pot, highBet int64, opts ...engine.ActionOption) view.GameView {
	return view.GameView{
		GameID:         "g1",
		HandNumber:     1,
		Stage:          engine.StagePreFlop,
		Pot:            pot,
		CurrentHighBet: highBet,
		HandInProgress: true,
		LegalActions:   opts,
	}
}

func TestBotJoinsReadiesAndActs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Caller{})
	h.bot.Start()
	defer h.bot.Close()

	h.expect(protocol.ActionIdentify)

	h.feed(protocol.ActionIdentified, protocol.Identified{PlayerID: "p1", Name: "robby", Token: "tok"})
	join := h.expect(protocol.ActionJoinGame)
	jg, err := protocol.Payload[protocol.JoinGame](join)
	require.NoError(t, err)
	assert.Equal(t, "g1", jg.GameID)

	h.feed(protocol.ActionGameJoined, protocol.GameJoined{GameID: "g1"})
	h.expect(protocol.ActionReady)

	v := decisionView(15, 10,
		engine.ActionOption{Type: engine.ActionFold},
		engine.ActionOption{Type: engine.ActionCall},
	)
	h.feed(protocol.ActionGameState, protocol.GameState{GameID: "g1", View: &v})
	act := h.expect(protocol.ActionPlayerAction)
	pa, err := protocol.Payload[protocol.PlayerAction](act)
	require.NoError(t, err)
	assert.Equal(t, engine.ActionCall, pa.Action)
	assert.Equal(t, 1, pa.HandNumber, "decision names the hand it answers")
}

func TestBotAnswersEachDecisionOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Caller{})
	h.bot.Start()
	defer h.bot.Close()
	h.expect(protocol.ActionIdentify)

	v := decisionView(15, 10, engine.ActionOption{Type: engine.ActionCall})
	h.feed(protocol.ActionGameState, protocol.GameState{GameID: "g1", View: &v})
	h.expect(protocol.ActionPlayerAction)

	// A spectator joining re-broadcasts the same decision.
	h.feed(protocol.ActionGameState, protocol.GameState{GameID: "g1", View: &v})
	h.expectSilence()

	// A raise changes the decision, so the bot answers again.
	raised := decisionView(45, 40, engine.ActionOption{Type: engine.ActionCall})
	h.feed(protocol.ActionGameState, protocol.GameState{GameID: "g1", View: &raised})
	h.expect(protocol.ActionPlayerAction)
}

func TestBotIgnoresViewsWithoutDecisions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Caller{})
	h.bot.Start()
	defer h.bot.Close()
	h.expect(protocol.ActionIdentify)

	v := decisionView(15, 10)
	h.feed(protocol.ActionGameState, protocol.GameState{GameID: "g1", View: &v})
	h.feed(protocol.ActionGameState, protocol.GameState{GameID: "g1"})
	h.expectSilence()
}

func TestBotStopsOnGameOver(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Caller{})
	h.bot.Start()
	h.expect(protocol.ActionIdentify)

	h.feed(protocol.ActionGameOver, protocol.GameOver{GameID: "g1", Reason: "completed"})
	assert.Eventually(t, func() bool {
		data, err := protocol.Encode(protocol.ActionGameState, nil)
		require.NoError(t, err)
		return h.bot.Send(data) != nil
	}, 2*time.Second, 10*time.Millisecond, "a stopped bot refuses messages")
}
