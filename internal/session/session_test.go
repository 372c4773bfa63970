package session

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardfelt/holdemd/internal/engine"
	"github.com/cardfelt/holdemd/internal/protocol"
	"github.com/cardfelt/holdemd/poker"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) messages(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(f.sent))
	for _, data := range f.sent {
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newManager() *Manager {
	return NewManager(log.New(os.Stderr))
}

func TestIdentifyCreatesSessionWithToken(t *testing.T) {
	t.Parallel()

	m := newManager()
	conn := &fakeConn{}
	s, resumed, err := m.Identify(conn, "alice", "")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.NotEmpty(t, s.PlayerID)
	assert.NotEmpty(t, s.Token())
	assert.True(t, s.Connected())

	_, _, err = m.Identify(conn, "", "")
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestIdentifyBoundsNameLength(t *testing.T) {
	t.Parallel()

	m := newManager()
	long := strings.Repeat("x", MaxNameLength+1)
	_, _, err := m.Identify(&fakeConn{}, long, "")
	assert.ErrorIs(t, err, ErrNameTooLong)

	// Runes, not bytes: 32 multibyte characters are fine.
	s, _, err := m.Identify(&fakeConn{}, strings.Repeat("é", MaxNameLength), "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.PlayerID)
}

func TestTokenIsSingleUseAndRotates(t *testing.T) {
	t.Parallel()

	m := newManager()
	first := &fakeConn{}
	s, _, err := m.Identify(first, "alice", "")
	require.NoError(t, err)
	token := s.Token()

	second := &fakeConn{}
	resumedSession, resumed, err := m.Identify(second, "", token)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Same(t, s, resumedSession)
	assert.NotEqual(t, token, s.Token(), "token rotates on use")
	assert.True(t, first.isClosed(), "stale connection is kicked")

	// The spent token no longer works.
	_, _, err = m.Identify(&fakeConn{}, "", token)
	assert.ErrorIs(t, err, ErrBadToken)

	// The rotated one does.
	third := &fakeConn{}
	_, resumed, err = m.Identify(third, "", s.Token())
	require.NoError(t, err)
	assert.True(t, resumed)
}

func TestDetachKeepsSessionAlive(t *testing.T) {
	t.Parallel()

	m := newManager()
	conn := &fakeConn{}
	s, _, err := m.Identify(conn, "alice", "")
	require.NoError(t, err)
	s.SetTable("g1")

	m.Detach(s, conn)
	assert.False(t, s.Connected())
	assert.Equal(t, "g1", s.TableID(), "table membership survives disconnects")

	// Sends while detached are dropped, not errors.
	require.NoError(t, s.Send(protocol.ActionChatMessage, protocol.ChatMessage{Text: "hi"}))

	// A stale detach must not kick a newer connection.
	fresh := &fakeConn{}
	_, _, err = m.Identify(fresh, "", s.Token())
	require.NoError(t, err)
	m.Detach(s, conn)
	assert.True(t, s.Connected())
}

func TestRemoveInvalidatesToken(t *testing.T) {
	t.Parallel()

	m := newManager()
	s, _, err := m.Identify(&fakeConn{}, "alice", "")
	require.NoError(t, err)
	token := s.Token()

	m.Remove(s.PlayerID)
	_, ok := m.Get(s.PlayerID)
	assert.False(t, ok)
	_, _, err = m.Identify(&fakeConn{}, "", token)
	assert.ErrorIs(t, err, ErrBadToken)
}

// startedHand builds a two-player engine state mid-hand for fan-out tests.
func startedHand(t *testing.T, aID, bID string) []engine.Transition {
	t.Helper()
	s := engine.New("g1", engine.Config{
		SmallBlind:    5,
		BigBlind:      10,
		StartingStack: 1000,
		MaxSeats:      6,
		Visibility:    engine.VisibilityShowdown,
	})
	for _, id := range []string{aID, bID} {
		var err error
		s, _, err = engine.AddPlayer(s, id, id, engine.RolePlayer)
		require.NoError(t, err)
		s, err = engine.SetReady(s, id)
		require.NoError(t, err)
	}
	deck := poker.MustCards()
	seen := make(map[poker.Card]bool)
	for _, suit := range []string{"h", "d", "c", "s"} {
		for _, rank := range []string{"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"} {
			c := poker.MustCard(rank + suit)
			if !seen[c] {
				seen[c] = true
				deck = append(deck, c)
			}
		}
	}
	trs, err := engine.StartHand(s, deck)
	require.NoError(t, err)
	return trs
}

func TestTransitionFanOutRedactsPerViewer(t *testing.T) {
	t.Parallel()

	m := newManager()
	connA, connB := &fakeConn{}, &fakeConn{}
	sa, _, err := m.Identify(connA, "alice", "")
	require.NoError(t, err)
	sb, _, err := m.Identify(connB, "bob", "")
	require.NoError(t, err)
	sa.SetTable("g1")
	sb.SetTable("g1")

	trs := startedHand(t, sa.PlayerID, sb.PlayerID)
	deal := trs[2]
	require.Equal(t, engine.EventDeal, deal.Event.Type)
	m.Transition("g1", deal, nil, 30*time.Second)

	msgs := connA.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ActionGameState, msgs[0].Action)
	gs, err := protocol.Payload[protocol.GameState](msgs[0])
	require.NoError(t, err)
	require.NotNil(t, gs.Event)
	require.NotNil(t, gs.View)
	for _, d := range gs.Event.Deals {
		if d.PlayerID == sa.PlayerID {
			assert.Len(t, d.Cards, 2)
		} else {
			assert.Empty(t, d.Cards, "other players' deals are redacted")
		}
	}
	for _, pv := range gs.View.Players {
		if pv.ID != sa.PlayerID {
			assert.Empty(t, pv.HoleCards)
		}
	}
}

func TestTransitionClockGoesOnlyToActivePlayer(t *testing.T) {
	t.Parallel()

	m := newManager()
	connA, connB := &fakeConn{}, &fakeConn{}
	sa, _, err := m.Identify(connA, "alice", "")
	require.NoError(t, err)
	sb, _, err := m.Identify(connB, "bob", "")
	require.NoError(t, err)
	sa.SetTable("g1")
	sb.SetTable("g1")

	trs := startedHand(t, sa.PlayerID, sb.PlayerID)
	deal := trs[2]
	m.Transition("g1", deal, nil, 12*time.Second)

	withClock := 0
	for _, conn := range []*fakeConn{connA, connB} {
		msgs := conn.messages(t)
		require.Len(t, msgs, 1)
		gs, err := protocol.Payload[protocol.GameState](msgs[0])
		require.NoError(t, err)
		require.NotNil(t, gs.View)
		if gs.View.LegalActions != nil {
			withClock++
			assert.Equal(t, int64(12000), gs.View.ActionRemainingMS)
		} else {
			assert.Zero(t, gs.View.ActionRemainingMS)
		}
	}
	assert.Equal(t, 1, withClock, "exactly one player is on the clock")
}

func TestTimeWarningGoesToOnePlayer(t *testing.T) {
	t.Parallel()

	m := newManager()
	connA, connB := &fakeConn{}, &fakeConn{}
	sa, _, err := m.Identify(connA, "alice", "")
	require.NoError(t, err)
	_, _, err = m.Identify(connB, "bob", "")
	require.NoError(t, err)

	m.TimeWarning("g1", sa.PlayerID, 15*time.Second)

	msgs := connA.messages(t)
	require.Len(t, msgs, 1)
	tw, err := protocol.Payload[protocol.TimeWarning](msgs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(15000), tw.RemainingMS)
	assert.Empty(t, connB.messages(t))
}

func TestGameOverReleasesTable(t *testing.T) {
	t.Parallel()

	m := newManager()
	conn := &fakeConn{}
	s, _, err := m.Identify(conn, "alice", "")
	require.NoError(t, err)
	s.SetTable("g1")

	standings := []protocol.Standing{{PlayerID: s.PlayerID, Name: "alice", Seat: 0, Stack: 2000}}
	m.GameOver("g1", "completed", s.PlayerID, standings)

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ActionGameOver, msgs[0].Action)
	over, err := protocol.Payload[protocol.GameOver](msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "completed", over.Reason)
	assert.Equal(t, standings, over.Standings)
	assert.Empty(t, s.TableID())
}

func TestChatFansOutToTable(t *testing.T) {
	t.Parallel()

	m := newManager()
	connA, connB, connC := &fakeConn{}, &fakeConn{}, &fakeConn{}
	sa, _, err := m.Identify(connA, "alice", "")
	require.NoError(t, err)
	sb, _, err := m.Identify(connB, "bob", "")
	require.NoError(t, err)
	sc, _, err := m.Identify(connC, "carol", "")
	require.NoError(t, err)
	sa.SetTable("g1")
	sb.SetTable("g1")
	sc.SetTable("g2")

	m.Chat(sa, engine.RoleSpectator, "nice hand")

	for _, conn := range []*fakeConn{connA, connB} {
		msgs := conn.messages(t)
		require.Len(t, msgs, 1)
		cm, err := protocol.Payload[protocol.ChatMessage](msgs[0])
		require.NoError(t, err)
		assert.Equal(t, "nice hand", cm.Text)
		assert.Equal(t, "alice", cm.Name)
		assert.Equal(t, engine.RoleSpectator, cm.Role, "lines carry the sender's role")
	}
	assert.Empty(t, connC.messages(t), "chat stays at the sender's table")
}
