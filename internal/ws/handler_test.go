package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
	"github.com/DoyleJ11/guess-the-track-backend/internal/gateway"
	"github.com/DoyleJ11/guess-the-track-backend/internal/hub"
	"github.com/DoyleJ11/guess-the-track-backend/internal/metrics"
	"github.com/DoyleJ11/guess-the-track-backend/pkg/types"
)

type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   *int64          `json:"ack"`
	Error string          `json:"error"`
}

type oneTrack struct{}

func (oneTrack) Next() engine.Item {
	return engine.Item{ID: "runaway", AnswerKey: "runaway", MediaRef: "/songs/runaway.mp3"}
}

type server struct {
	url     string
	sb      *Switchboard
	hub     *hub.Hub
	metrics *metrics.Metrics
}

func newServer(t *testing.T, cfg Config) server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := metrics.New()
	sb := NewSwitchboard(nil)
	h := hub.NewHub(ctx, hub.Config{
		Rules:     engine.DefaultRules(),
		Items:     oneTrack{},
		Publisher: gateway.NewBroadcaster(sb, m),
		Metrics:   m,
	})
	gw := gateway.New(gateway.Config{
		Rooms:     h,
		Transport: sb,
		Codes:     func() (string, error) { return "ABC123", nil },
		Metrics:   m,
	})
	cfg.Metrics = m
	srv := httptest.NewServer(Handler(sb, gw, cfg))
	t.Cleanup(srv.Close)
	return server{url: "ws" + strings.TrimPrefix(srv.URL, "http"), sb: sb, hub: h, metrics: m}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any, ack int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := map[string]any{"event": event, "data": data}
	if ack > 0 {
		msg["ack"] = ack
	}
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func read(t *testing.T, conn *websocket.Conn) inFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var f inFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) inFrame {
	t.Helper()
	for i := 0; i < 32; i++ {
		if f := read(t, conn); f.Event == event {
			return f
		}
	}
	t.Fatalf("no %s frame", event)
	return inFrame{}
}

func TestHandler_JoinAckThenRoster(t *testing.T) {
	s := newServer(t, Config{})
	conn := dial(t, s.url)

	send(t, conn, types.EventJoinGame, types.JoinGameRequest{Code: "ABC123", Name: "Alice"}, 1)

	ack := read(t, conn)
	require.Equal(t, "ack", ack.Event)
	require.NotNil(t, ack.Ack)
	assert.Equal(t, int64(1), *ack.Ack)
	var join types.JoinAck
	require.NoError(t, json.Unmarshal(ack.Data, &join))
	assert.True(t, join.OK)
	assert.True(t, join.IsCreator)
	assert.Equal(t, "Alice", join.Me.Name)

	roster := read(t, conn)
	require.Equal(t, types.EventRoster, roster.Event)
	var players []types.PlayerView
	require.NoError(t, json.Unmarshal(roster.Data, &players))
	require.Len(t, players, 1)
	assert.Equal(t, join.Me.ID, players[0].ID)
}

func TestHandler_RoundBroadcastReachesRoom(t *testing.T) {
	s := newServer(t, Config{})
	host := dial(t, s.url)
	guest := dial(t, s.url)

	send(t, host, types.EventJoinGame, types.JoinGameRequest{Code: "ABC123", Name: "H"}, 1)
	readUntil(t, host, "ack")
	send(t, guest, types.EventJoinGame, types.JoinGameRequest{Code: "ABC123", Name: "G"}, 1)
	readUntil(t, guest, "ack")

	send(t, host, types.EventStartRound, "ABC123", 0)
	f := readUntil(t, guest, types.EventRoundStart)
	var start types.RoundStart
	require.NoError(t, json.Unmarshal(f.Data, &start))
	assert.Equal(t, "/songs/runaway.mp3", start.Track.Src)
	assert.Equal(t, int64(20000), start.Duration)

	send(t, guest, types.EventGuess, types.GuessRequest{Code: "ABC123", Guess: "Runaway"}, 0)
	f = readUntil(t, host, types.EventCorrectGuess)
	var cg types.CorrectGuess
	require.NoError(t, json.Unmarshal(f.Data, &cg))
	assert.Equal(t, 1000, cg.PointsAwarded)
}

func TestHandler_ErrorFrames(t *testing.T) {
	s := newServer(t, Config{})
	conn := dial(t, s.url)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{nope")))
	f := read(t, conn)
	assert.Equal(t, "error", f.Event)
	assert.Equal(t, "bad json", f.Error)

	send(t, conn, "addPoints", map[string]any{"points": 5}, 7)
	f = read(t, conn)
	assert.Equal(t, "error", f.Event)
	require.NotNil(t, f.Ack)
	assert.Equal(t, int64(7), *f.Ack)
	assert.Contains(t, f.Error, "unknown event")
}

func TestHandler_RateLimited(t *testing.T) {
	s := newServer(t, Config{Rate: 0.001, Burst: 1})
	conn := dial(t, s.url)

	send(t, conn, types.EventSize, "ABC123", 1)
	f := read(t, conn)
	assert.Equal(t, "ack", f.Event)

	send(t, conn, types.EventSize, "ABC123", 2)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var dropped inFrame
	err := wsjson.Read(ctx, conn, &dropped)
	require.Error(t, err, "got %+v", dropped)
}

func TestHandler_DisconnectLeavesRoom(t *testing.T) {
	s := newServer(t, Config{})
	conn := dial(t, s.url)

	send(t, conn, types.EventJoinGame, types.JoinGameRequest{Code: "ABC123"}, 1)
	readUntil(t, conn, "ack")
	require.Equal(t, 1, s.sb.Subscribers("ABC123"))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return s.hub.Get(context.Background(), "ABC123") == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.sb.Subscribers("ABC123"))
}
