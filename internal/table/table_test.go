package table

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/poker"
)

type recorder struct {
	mu        sync.Mutex
	events    []engine.EventType
	remains   []time.Duration
	warnings  []time.Duration
	overs     []string
	winners   []string
	standings [][]protocol.Standing
}

func (r *recorder) Transition(_ string, tr engine.Transition, _ *engine.State, actionRemaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, tr.Event.Type)
	r.remains = append(r.remains, actionRemaining)
}

func (r *recorder) TimeWarning(_, _ string, remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, remaining)
}

func (r *recorder) GameOver(_ string, reason, winner string, standings []protocol.Standing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overs = append(r.overs, reason)
	r.winners = append(r.winners, winner)
	r.standings = append(r.standings, standings)
}

func (r *recorder) eventTypes() []engine.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.EventType(nil), r.events...)
}

func (r *recorder) warningList() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.warnings...)
}

func (r *recorder) hasEvent(et engine.EventType) bool {
	for _, e := range r.eventTypes() {
		if e == et {
			return true
		}
	}
	return false
}

type sinkRecorder struct {
	mu  sync.Mutex
	trs []engine.Transition
}

func (s *sinkRecorder) Record(_ string, tr engine.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trs = append(s.trs, tr)
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trs)
}

func testOptions(t *testing.T, clock quartz.Clock) (Options, *recorder) {
	rec := &recorder{}
	return Options{
		ID:   "g1",
		Name: "test table",
		Config: engine.Config{
			SmallBlind:    5,
			BigBlind:      10,
			StartingStack: 1000,
			MaxSeats:      6,
			Visibility:    engine.VisibilityShowdown,
		},
		ActionTimeout:  30 * time.Second,
		InterHandDelay: 3 * time.Second,
		Clock:          clock,
		Broadcaster:    rec,
	}, rec
}

func rigged(t *testing.T, first ...string) []poker.Card {
	t.Helper()
	deck := poker.MustCards(first...)
	seen := make(map[poker.Card]bool, 52)
	for _, c := range deck {
		seen[c] = true
	}
	for _, suit := range []string{"h", "d", "c", "s"} {
		for _, rank := range []string{"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"} {
			c := poker.MustCard(rank + suit)
			if !seen[c] {
				deck = append(deck, c)
			}
		}
	}
	require.Len(t, deck, 52)
	return deck
}

// flush waits until the table goroutine has drained everything queued
// before this call.
func flush(t *testing.T, tbl *Table) Status {
	t.Helper()
	st, err := tbl.Status()
	require.NoError(t, err)
	return st
}

func joinReady(t *testing.T, tbl *Table, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := tbl.Join(id, id, engine.RolePlayer)
		require.NoError(t, err)
		require.NoError(t, tbl.Ready(id))
	}
}

func TestHandStartsAfterInterHandDelay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	st := flush(t, tbl)
	assert.False(t, st.HandInProgress, "hand waits for the inter-hand delay")

	mock.Advance(3 * time.Second).MustWait(ctx)
	st = flush(t, tbl)
	assert.True(t, st.HandInProgress)
	assert.True(t, rec.hasEvent(engine.EventHandStart))
	assert.True(t, rec.hasEvent(engine.EventDeal))
}

func TestSinglePlayerNeverStarts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, _ := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a")
	mock.Advance(time.Minute).MustWait(ctx)
	st := flush(t, tbl)
	assert.False(t, st.HandInProgress)

	_, err := tbl.Join("w", "w", engine.RoleSpectator)
	require.NoError(t, err)
	mock.Advance(time.Minute).MustWait(ctx)
	st = flush(t, tbl)
	assert.False(t, st.HandInProgress, "spectators do not count toward the start gate")
}

func TestTimeoutWarningsAndFoldSubstitution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())

	// Dealer a faces the big blind; silence costs the hand.
	mock.Advance(15 * time.Second).MustWait(ctx)
	flush(t, tbl)
	mock.Advance(9 * time.Second).MustWait(ctx)
	flush(t, tbl)
	assert.Equal(t, []time.Duration{15 * time.Second, 6 * time.Second}, rec.warningList())

	mock.Advance(6 * time.Second).MustWait(ctx)
	st := flush(t, tbl)
	assert.False(t, st.HandInProgress)
	assert.True(t, rec.hasEvent(engine.EventPlayerTimeout))
	assert.True(t, rec.hasEvent(engine.EventHandEnd))
}

func TestTimeoutChecksWhenFree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())
	require.NoError(t, tbl.Act("a", 1, engine.ActionCall, 0))

	// b has the big blind option; the default on timeout is a check, so
	// the hand advances to the flop instead of ending.
	mock.Advance(30 * time.Second).MustWait(ctx)
	st := flush(t, tbl)
	assert.True(t, st.HandInProgress)
	assert.True(t, rec.hasEvent(engine.EventPlayerTimeout))
	assert.True(t, rec.hasEvent(engine.EventFlop))
}

func TestActionResetsTheClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())

	mock.Advance(20 * time.Second).MustWait(ctx)
	flush(t, tbl)
	require.NoError(t, tbl.Act("a", 1, engine.ActionCall, 0))

	// b's fresh clock: the old deadline passing must not time b out.
	mock.Advance(15 * time.Second).MustWait(ctx)
	st := flush(t, tbl)
	assert.True(t, st.HandInProgress)
	assert.False(t, rec.hasEvent(engine.EventPlayerTimeout))
}

func TestSpectatorJoinDoesNotResetClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())

	mock.Advance(20 * time.Second).MustWait(ctx)
	flush(t, tbl)
	_, err := tbl.Join("w", "w", engine.RoleSpectator)
	require.NoError(t, err)

	mock.Advance(10 * time.Second).MustWait(ctx)
	flush(t, tbl)
	assert.True(t, rec.hasEvent(engine.EventPlayerTimeout), "original deadline still stands")
}

func TestLeaveMidHandFolds(t *testing.T) {
	t.Parallel()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b", "c")
	require.NoError(t, tbl.StartNow())

	require.NoError(t, tbl.Leave("a"))
	flush(t, tbl)
	assert.True(t, rec.hasEvent(engine.EventPlayerLeft))

	v, err := tbl.ViewFor("b")
	require.NoError(t, err)
	assert.True(t, v.HandInProgress, "hand continues without the leaver")
}

func TestGameOverWhenOnePlayerHoldsAllChips(t *testing.T) {
	t.Parallel()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	sink := &sinkRecorder{}
	opts.Sinks = []Sink{sink}
	// Heads-up deal order is non-dealer first: b gets kings, a aces.
	opts.Decks = [][]poker.Card{rigged(t, "Kh", "Ah", "Ks", "As", "2h", "7d", "8c", "3s", "4d")}
	tbl := New(opts)

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())
	require.NoError(t, tbl.Act("a", 1, engine.ActionAllIn, 0))
	require.NoError(t, tbl.Act("b", 1, engine.ActionCall, 0))

	select {
	case <-tbl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("table did not terminate")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []string{"completed"}, rec.overs)
	assert.Equal(t, []string{"a"}, rec.winners)
	require.Len(t, rec.standings, 1)
	assert.Equal(t, []protocol.Standing{
		{PlayerID: "a", Name: "a", Seat: 0, Stack: 2000},
		{PlayerID: "b", Name: "b", Seat: 1, Stack: 0},
	}, rec.standings[0], "standings ordered by stack then seat")
	assert.Greater(t, sink.count(), 0, "sinks observed the hand")
}

func TestClosedTableRejectsCalls(t *testing.T) {
	t.Parallel()

	mock := quartz.NewMock(t)
	opts, _ := testOptions(t, mock)
	tbl := New(opts)

	joinReady(t, tbl, "a", "b")
	tbl.Close("shutting down")

	_, err := tbl.Join("c", "c", engine.RolePlayer)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tbl.Ready("a"), ErrClosed)
}

func TestJoinErrorsPassThrough(t *testing.T) {
	t.Parallel()

	mock := quartz.NewMock(t)
	opts, _ := testOptions(t, mock)
	opts.Config.MaxSeats = 2
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	_, err := tbl.Join("a", "a", engine.RolePlayer)
	assert.ErrorIs(t, err, engine.ErrAlreadyInGame)
	_, err = tbl.Join("c", "c", engine.RolePlayer)
	assert.ErrorIs(t, err, engine.ErrGameFull)
	assert.ErrorIs(t, tbl.Act("ghost", 0, engine.ActionFold, 0), engine.ErrNotInGame)
}

func TestStaleActionCannotFoldTheNextHand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, _ := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())
	require.NoError(t, tbl.Act("a", 1, engine.ActionFold, 0))

	mock.Advance(3 * time.Second).MustWait(ctx)
	st := flush(t, tbl)
	require.True(t, st.HandInProgress, "second hand deals after the delay")

	// A fold from hand 1 arriving late must bounce, not fold b into
	// hand 2.
	assert.ErrorIs(t, tbl.Act("b", 1, engine.ActionFold, 0), engine.ErrStaleHand)
	assert.ErrorIs(t, tbl.Reveal("b", 1), engine.ErrStaleHand)

	v, err := tbl.ViewFor("b")
	require.NoError(t, err)
	require.True(t, v.HandInProgress)
	for _, p := range v.Players {
		assert.False(t, p.Folded)
	}
}

func TestActiveViewCarriesRemainingTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := quartz.NewMock(t)
	opts, rec := testOptions(t, mock)
	tbl := New(opts)
	defer tbl.Close("test over")

	joinReady(t, tbl, "a", "b")
	require.NoError(t, tbl.StartNow())

	// Dealer a is first to act with an untouched clock.
	v, err := tbl.ViewFor("a")
	require.NoError(t, err)
	require.NotEmpty(t, v.LegalActions)
	assert.Equal(t, int64(30000), v.ActionRemainingMS)

	rec.mu.Lock()
	lastRemain := rec.remains[len(rec.remains)-1]
	rec.mu.Unlock()
	assert.Equal(t, 30*time.Second, lastRemain, "deal broadcast carries the full clock")

	mock.Advance(15 * time.Second).MustWait(ctx)
	v, err = tbl.ViewFor("a")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), v.ActionRemainingMS)

	// Waiting players get no clock at all.
	v, err = tbl.ViewFor("b")
	require.NoError(t, err)
	assert.Empty(t, v.LegalActions)
	assert.Zero(t, v.ActionRemainingMS)
}
