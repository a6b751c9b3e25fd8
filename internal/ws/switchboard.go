package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/guess-the-track-backend/internal/types"
)

const outboxSize = 64

type client struct {
	id     string
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

// kick marks the client for disconnection. out is never closed, so
// concurrent senders cannot panic.
func (c *client) kick() {
	c.once.Do(func() { close(c.closed) })
}

// Switchboard tracks live connections and which rooms they listen to.
// Sends never block: a client whose outbox is full is disconnected.
type Switchboard struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
	logger  *zap.Logger
}

func NewSwitchboard(logger *zap.Logger) *Switchboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Switchboard{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
		logger:  logger.Named("ws"),
	}
}

func (sb *Switchboard) register(connID string) *client {
	c := &client{id: connID, out: make(chan []byte, outboxSize), closed: make(chan struct{})}
	sb.mu.Lock()
	sb.clients[connID] = c
	sb.mu.Unlock()
	return c
}

func (sb *Switchboard) unregister(connID string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	delete(sb.clients, connID)
	for code, subs := range sb.rooms {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(sb.rooms, code)
		}
	}
}

func (sb *Switchboard) Subscribe(connID, code string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	c, ok := sb.clients[connID]
	if !ok {
		return
	}
	subs, ok := sb.rooms[code]
	if !ok {
		subs = make(map[string]*client)
		sb.rooms[code] = subs
	}
	subs[connID] = c
}

func (sb *Switchboard) Unsubscribe(connID, code string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if subs, ok := sb.rooms[code]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(sb.rooms, code)
		}
	}
}

func (sb *Switchboard) Send(connID, event string, payload any) {
	sb.sendMessage(connID, types.ServerMessage{Event: event, Data: payload})
}

// SendAck answers the client frame that carried ack.
func (sb *Switchboard) SendAck(connID string, ack int64, payload any) {
	sb.sendMessage(connID, types.ServerMessage{Event: types.EventAck, Data: payload, Ack: &ack})
}

func (sb *Switchboard) SendError(connID string, ack *int64, msg string) {
	sb.sendMessage(connID, types.ServerMessage{Event: types.EventError, Ack: ack, Error: msg})
}

func (sb *Switchboard) Broadcast(code, event string, payload any) {
	b, ok := sb.encode(types.ServerMessage{Event: event, Data: payload})
	if !ok {
		return
	}
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	for _, c := range sb.rooms[code] {
		sb.enqueue(c, b)
	}
}

// Subscribers reports how many connections listen to code.
func (sb *Switchboard) Subscribers(code string) int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return len(sb.rooms[code])
}

func (sb *Switchboard) sendMessage(connID string, msg types.ServerMessage) {
	b, ok := sb.encode(msg)
	if !ok {
		return
	}
	sb.mu.RLock()
	c, found := sb.clients[connID]
	sb.mu.RUnlock()
	if found {
		sb.enqueue(c, b)
	}
}

func (sb *Switchboard) encode(msg types.ServerMessage) ([]byte, bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		sb.logger.Error("encode frame", zap.String("event", msg.Event), zap.Error(err))
		return nil, false
	}
	return b, true
}

func (sb *Switchboard) enqueue(c *client, b []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.out <- b:
	default:
		sb.logger.Warn("outbox full, dropping connection", zap.String("conn", c.id))
		c.kick()
	}
}
