package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardfelt/holdemd/internal/engine"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := Encode(ActionPlayerAction, PlayerAction{HandNumber: 3, Action: engine.ActionRaise, Amount: 40})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ActionPlayerAction, env.Action)

	pa, err := Payload[PlayerAction](env)
	require.NoError(t, err)
	assert.Equal(t, 3, pa.HandNumber)
	assert.Equal(t, engine.ActionRaise, pa.Action)
	assert.Equal(t, int64(40), pa.Amount)
}

func TestEncodeWithoutPayload(t *testing.T) {
	t.Parallel()

	data, err := Encode(ActionListGames, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"listGames"}`, string(data))

	env, err := Decode(data)
	require.NoError(t, err)
	p, err := Payload[Identify](env)
	require.NoError(t, err)
	assert.Zero(t, p)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := []string{
		``,
		`not json`,
		`42`,
		`{"payload":{}}`,
		`{"action":""}`,
	}
	for _, raw := range cases {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, "input %q", raw)
	}
}

func TestPayloadTypeMismatch(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"action":"playerAction","payload":{"amount":"a lot"}}`))
	require.NoError(t, err)
	_, err = Payload[PlayerAction](env)
	assert.Error(t, err)
}

func TestErrorForEngineErrors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CodeOutOfTurn, ErrorFor(engine.ErrOutOfTurn).Code)
	assert.Equal(t, CodeOutOfTurn, ErrorFor(engine.ErrStaleHand).Code)
	assert.Equal(t, CodeInvalidAmount, ErrorFor(engine.ErrInvalidAmount).Code)
	assert.Equal(t, CodeGameFull, ErrorFor(engine.ErrGameFull).Code)
	assert.Equal(t, CodeInvalidAction, ErrorFor(engine.ErrHandRunning).Code)
}
