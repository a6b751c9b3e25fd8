package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/guess-the-track-backend/internal/types"
)

func TestSwitchboard_BroadcastOnlySubscribers(t *testing.T) {
	sb := NewSwitchboard(nil)
	a := sb.register("a")
	b := sb.register("b")
	sb.Subscribe("a", "R1")
	sb.Subscribe("ghost", "R1")

	sb.Broadcast("R1", "roster", []string{"x"})

	require.Len(t, a.out, 1)
	assert.Len(t, b.out, 0)
	assert.Equal(t, 1, sb.Subscribers("R1"))

	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(<-a.out, &msg))
	assert.Equal(t, "roster", msg.Event)
}

func TestSwitchboard_UnsubscribeAndUnregister(t *testing.T) {
	sb := NewSwitchboard(nil)
	a := sb.register("a")
	sb.register("b")
	sb.Subscribe("a", "R1")
	sb.Subscribe("b", "R1")

	sb.Unsubscribe("a", "R1")
	sb.Broadcast("R1", "roster", nil)
	assert.Len(t, a.out, 0)

	sb.unregister("b")
	assert.Equal(t, 0, sb.Subscribers("R1"))
}

func TestSwitchboard_AckCarriesCorrelation(t *testing.T) {
	sb := NewSwitchboard(nil)
	a := sb.register("a")

	sb.SendAck("a", 42, 3)

	var msg struct {
		Event string `json:"event"`
		Ack   int64  `json:"ack"`
		Data  int    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-a.out, &msg))
	assert.Equal(t, "ack", msg.Event)
	assert.Equal(t, int64(42), msg.Ack)
	assert.Equal(t, 3, msg.Data)
}

func TestSwitchboard_SlowClientKicked(t *testing.T) {
	sb := NewSwitchboard(nil)
	a := sb.register("a")

	for i := 0; i < outboxSize; i++ {
		sb.Send("a", "roster", i)
	}
	select {
	case <-a.closed:
		t.Fatal("kicked before outbox was full")
	default:
	}

	sb.Send("a", "roster", "overflow")
	select {
	case <-a.closed:
	default:
		t.Fatal("expected slow client to be kicked")
	}
	// further sends are dropped without panicking
	sb.Send("a", "roster", "again")
	assert.Len(t, a.out, outboxSize)
}
