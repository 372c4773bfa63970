package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardfelt/holdemd/internal/protocol"
)

func testHTTP(t *testing.T) (*httptest.Server, *Service, string) {
	t.Helper()
	svc, err := NewService(DefaultConfig(), log.New(os.Stderr), quartz.NewMock(t))
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)

	srv := NewServer("unused", svc, log.New(os.Stderr))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	games := svc.ListGames()
	require.Len(t, games, 1)
	return ts, svc, games[0].ID
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ts, _, _ := testHTTP(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminGameLifecycle(t *testing.T) {
	t.Parallel()
	ts, _, _ := testHTTP(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/games", createGameRequest{
		Name:       "side",
		SmallBlind: 25,
		BigBlind:   50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created protocol.GameSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/admin/games", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Games []protocol.GameSummary `json:"games"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Games, 2)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/admin/games/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/admin/games/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminRejectsBadRequests(t *testing.T) {
	t.Parallel()
	ts, _, gameID := testHTTP(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/games", createGameRequest{
		Name:       "bad",
		SmallBlind: 10,
		BigBlind:   5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/admin/games/nope/start", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Starting with too few players seated is a conflict, not a crash.
	resp = doJSON(t, http.MethodPost, ts.URL+"/admin/games/"+gameID+"/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/admin/games/"+gameID+"/bots", addBotRequest{Strategy: "gto"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminBotsAndHands(t *testing.T) {
	t.Parallel()
	ts, svc, gameID := testHTTP(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/games/"+gameID+"/bots", addBotRequest{Strategy: "call", Name: "robby"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Eventually(t, func() bool {
		games := svc.ListGames()
		return len(games) == 1 && games[0].Bots == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp = doJSON(t, http.MethodGet, ts.URL+"/admin/games/"+gameID+"/hands", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hands struct {
		Hands []json.RawMessage `json:"hands"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hands))
	assert.Empty(t, hands.Hands, "no hands completed yet")
}

func TestWebSocketIdentifyRoundTrip(t *testing.T) {
	t.Parallel()
	ts, _, gameID := testHTTP(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	write := func(action string, payload any) {
		data, err := protocol.Encode(action, payload)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}
	read := func() protocol.Envelope {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		return env
	}

	write(protocol.ActionIdentify, protocol.Identify{Name: "alice"})
	env := read()
	require.Equal(t, protocol.ActionIdentified, env.Action)
	id, err := protocol.Payload[protocol.Identified](env)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Name)
	assert.NotEmpty(t, id.Token)

	write(protocol.ActionJoinGame, protocol.JoinGame{GameID: gameID})
	env = read()
	require.Equal(t, protocol.ActionGameJoined, env.Action)
	joined, err := protocol.Payload[protocol.GameJoined](env)
	require.NoError(t, err)
	assert.Equal(t, gameID, joined.GameID)
}
