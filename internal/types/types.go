package types

import "encoding/json"

// ClientMessage is one inbound websocket frame. Ack is set when the client
// expects a reply correlated to this frame.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

// ServerMessage is one outbound frame: a room broadcast, a direct event, or
// the reply to a client frame (Event "ack").
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ack   *int64 `json:"ack,omitempty"`
	Error string `json:"error,omitempty"`
}

const EventAck = "ack"
const EventError = "error"
