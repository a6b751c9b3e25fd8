package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
	"github.com/DoyleJ11/guess-the-track-backend/internal/metrics"
	"github.com/DoyleJ11/guess-the-track-backend/internal/room"
)

var ErrAlreadyExists = errors.New("room code already exists")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Code  string
	Reply chan CreateReply
}

type CreateReply struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type EnsureRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom drops Code only while it still maps to Room, so a room that
// replaced a closed one under the same code survives.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Rules      engine.Rules
	Items      room.ItemSource
	Publisher  room.Publisher
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	EmptyGrace time.Duration
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		logger: cfg.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Create registers a new room under code. The first caller wins; later
// callers get ErrAlreadyExists while the room is alive.
func (h *Hub) Create(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan CreateReply, 1)
	if err := h.send(ctx, CreateRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rep := <-reply:
		return rep.Room, rep.Err
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns nil when no live room holds code.
func (h *Hub) Get(ctx context.Context, code string) *room.Room {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) Ensure(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, EnsureRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Remove(code string, r *room.Room) {
	select {
	case h.inbox <- RemoveRoom{Code: code, Room: r}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Len(ctx context.Context) int {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountRooms{Reply: reply}); err != nil {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.ctx.Done():
		return 0
	case <-ctx.Done():
		return 0
	}
}

// Shutdown closes every room and stops the hub. It returns once the hub
// has stopped accepting requests.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
		<-h.ctx.Done()
	case <-h.ctx.Done():
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			// Rooms run under h.ctx and stop on their own.
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.live(msg.Code) != nil {
					msg.Reply <- CreateReply{Err: ErrAlreadyExists}
					break
				}
				msg.Reply <- CreateReply{Room: h.newRoom(msg.Code)}

			case GetRoom:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureRoom:
				if r := h.live(msg.Code); r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.newRoom(msg.Code)

			case RemoveRoom:
				if h.rooms[msg.Code] == msg.Room {
					h.drop(msg.Code)
				}

			case CountRooms:
				n := 0
				for code := range h.rooms {
					if h.live(code) != nil {
						n++
					}
				}
				msg.Reply <- n

			case ShutdownHub:
				for _, r := range h.rooms {
					r.Close()
				}
				for code := range h.rooms {
					h.drop(code)
				}
				h.cancel()
				return
			}
		}
	}
}

// live returns the room for code, forgetting it if it already closed.
func (h *Hub) live(code string) *room.Room {
	r := h.rooms[code]
	if r == nil {
		return nil
	}
	if r.Closed() {
		h.drop(code)
		return nil
	}
	return r
}

func (h *Hub) newRoom(code string) *room.Room {
	r := room.New(h.ctx, room.Options{
		Code:       code,
		Rules:      h.cfg.Rules,
		Items:      h.cfg.Items,
		Publisher:  h.cfg.Publisher,
		Logger:     h.cfg.Logger,
		EmptyGrace: h.cfg.EmptyGrace,
		OnClose: func(r *room.Room) {
			h.Remove(r.Code(), r)
		},
	})
	h.rooms[code] = r
	h.cfg.Metrics.RoomsActive.Inc()
	h.logger.Info("room created", zap.String("room", code))
	return r
}

func (h *Hub) drop(code string) {
	delete(h.rooms, code)
	h.cfg.Metrics.RoomsActive.Dec()
}
