package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
	"github.com/DoyleJ11/guess-the-track-backend/internal/hub"
	"github.com/DoyleJ11/guess-the-track-backend/internal/metrics"
	"github.com/DoyleJ11/guess-the-track-backend/internal/room"
	"github.com/DoyleJ11/guess-the-track-backend/pkg/types"
)

var ErrUnknownEvent = errors.New("unknown event")
var ErrBadPayload = errors.New("bad payload")

// joins retry when the resolved room closed underneath them
const maxJoinAttempts = 3

const maxCreateAttempts = 8

const leaveTimeout = 5 * time.Second

// Transport is the connection layer: ordered delivery per connection and
// room-scoped multicast. Every method must return without blocking.
type Transport interface {
	Send(connID, event string, payload any)
	Broadcast(code, event string, payload any)
	Subscribe(connID, code string)
	Unsubscribe(connID, code string)
}

type Registry interface {
	Create(ctx context.Context, code string) (*room.Room, error)
	Ensure(ctx context.Context, code string) (*room.Room, error)
	Get(ctx context.Context, code string) *room.Room
}

// Reply answers the inbound frame that triggered a call. It may be nil when
// the client did not ask for an acknowledgement.
type Reply func(payload any)

type Config struct {
	Rooms     Registry
	Transport Transport
	Codes     func() (string, error)
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Gateway maps connection events onto rooms. It remembers which rooms a
// connection joined so a disconnect can leave all of them.
type Gateway struct {
	rooms     Registry
	transport Transport
	codes     func() (string, error)
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	memberships map[string]map[string]struct{}
}

func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Gateway{
		rooms:       cfg.Rooms,
		transport:   cfg.Transport,
		codes:       cfg.Codes,
		logger:      cfg.Logger.Named("gateway"),
		metrics:     cfg.Metrics,
		memberships: make(map[string]map[string]struct{}),
	}
}

// Dispatch decodes one inbound event and routes it.
func (g *Gateway) Dispatch(ctx context.Context, connID, event string, data json.RawMessage, reply Reply) error {
	switch event {
	case types.EventJoinGame:
		var req types.JoinGameRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		g.Join(ctx, connID, req, reply)

	case types.EventStartRound:
		code, err := decodeCode(data)
		if err != nil {
			return err
		}
		g.StartRound(ctx, connID, code)

	case types.EventGuess:
		var req types.GuessRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		g.Guess(ctx, connID, req)

	case types.EventLeaveGame:
		code, err := decodeCode(data)
		if err != nil {
			return err
		}
		g.Leave(ctx, connID, code)

	case types.EventSetName:
		var req types.SetNameRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		g.SetName(ctx, connID, req)

	case types.EventCreateGame:
		answer(reply, g.Create(ctx))

	case types.EventSize:
		code, err := decodeCode(data)
		if err != nil {
			return err
		}
		answer(reply, g.Size(ctx, code))

	case types.EventRedirect:
		code, err := decodeCode(data)
		if err != nil {
			return err
		}
		answer(reply, g.Redirect(ctx, code))

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return nil
}

// Join admits connID into the room for req.Code, creating the room on first
// join. reply receives the acknowledgement before the roster broadcast.
func (g *Gateway) Join(ctx context.Context, connID string, req types.JoinGameRequest, reply Reply) types.JoinAck {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return g.rejectJoin(reply, types.ErrMissingCode)
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		r, err := g.rooms.Ensure(ctx, code)
		if err != nil {
			g.logger.Warn("resolve room", zap.String("room", code), zap.Error(err))
			return g.rejectJoin(reply, types.ErrUnavailable)
		}

		var ack types.JoinAck
		_, err = r.Join(ctx, connID, req.Name, func(res room.JoinResult) {
			g.transport.Subscribe(connID, code)
			g.track(connID, code)
			me := PlayerView(res.Player)
			ack = types.JoinAck{OK: true, RoomCode: code, Me: &me, IsCreator: res.IsHost}
			answer(reply, ack)
		})
		switch {
		case err == nil:
			g.logger.Debug("joined", zap.String("room", code), zap.String("conn", connID))
			return ack
		case errors.Is(err, room.ErrRoomClosed):
			continue
		case errors.Is(err, engine.ErrRoomFull):
			return g.rejectJoin(reply, types.ErrRoomFull)
		case errors.Is(err, engine.ErrGameEnded):
			return g.rejectJoin(reply, types.ErrGameEnded)
		default:
			g.logger.Warn("join", zap.String("room", code), zap.Error(err))
			return g.rejectJoin(reply, types.ErrUnavailable)
		}
	}
	return g.rejectJoin(reply, types.ErrRoomNotFound)
}

func (g *Gateway) rejectJoin(reply Reply, reason string) types.JoinAck {
	g.metrics.JoinsRejected.WithLabelValues(reason).Inc()
	ack := types.JoinAck{OK: false, Error: reason}
	answer(reply, ack)
	return ack
}

// StartRound, Guess and SetName never report failure to the caller: unknown
// rooms and invalid actions are dropped on purpose.
func (g *Gateway) StartRound(ctx context.Context, connID, code string) {
	if r := g.lookup(ctx, code); r != nil {
		g.debugIfErr("startRound", code, connID, r.StartRound(ctx, connID))
	}
}

func (g *Gateway) Guess(ctx context.Context, connID string, req types.GuessRequest) {
	if r := g.lookup(ctx, req.Code); r != nil {
		g.debugIfErr("guess", req.Code, connID, r.Guess(ctx, connID, req.Guess))
	}
}

func (g *Gateway) SetName(ctx context.Context, connID string, req types.SetNameRequest) {
	if r := g.lookup(ctx, req.Code); r != nil {
		g.debugIfErr("setName", req.Code, connID, r.Rename(ctx, connID, req.Name))
	}
}

// Leave stops room delivery for connID before removing the player, so the
// departing connection does not receive the updated roster. The membership
// is forgotten only once the room confirmed the departure; otherwise a later
// Disconnect retries it.
func (g *Gateway) Leave(ctx context.Context, connID, code string) {
	code = strings.TrimSpace(code)
	g.transport.Unsubscribe(connID, code)

	// A dropped connection cancels ctx, but the departure must still land.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
	defer cancel()

	r := g.lookup(lctx, code)
	if r == nil {
		g.untrack(connID, code)
		return
	}
	switch err := r.Leave(lctx, connID); {
	case err == nil, errors.Is(err, room.ErrRoomClosed), errors.Is(err, engine.ErrUnknownPlayer):
		g.untrack(connID, code)
	default:
		g.logger.Warn("leave", zap.String("room", code), zap.String("conn", connID), zap.Error(err))
	}
}

// Disconnect leaves every room connID joined.
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	g.mu.Lock()
	codes := make([]string, 0, len(g.memberships[connID]))
	for code := range g.memberships[connID] {
		codes = append(codes, code)
	}
	g.mu.Unlock()

	for _, code := range codes {
		g.Leave(ctx, connID, code)
	}
}

// Create reserves a fresh room code. The room is reaped if nobody joins.
func (g *Gateway) Create(ctx context.Context) types.CreateAck {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		code, err := g.codes()
		if err != nil {
			g.logger.Error("generate code", zap.Error(err))
			return types.CreateAck{OK: false, Error: types.ErrUnavailable}
		}
		_, err = g.rooms.Create(ctx, code)
		if errors.Is(err, hub.ErrAlreadyExists) {
			g.logger.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}
		if err != nil {
			g.logger.Warn("create room", zap.Error(err))
			return types.CreateAck{OK: false, Error: types.ErrUnavailable}
		}
		return types.CreateAck{OK: true, RoomCode: code}
	}
	return types.CreateAck{OK: false, Error: types.ErrUnavailable}
}

// Size is the number of players in code, zero when the room does not exist.
func (g *Gateway) Size(ctx context.Context, code string) int {
	r := g.lookup(ctx, code)
	if r == nil {
		return 0
	}
	v, err := r.View(ctx)
	if err != nil {
		return 0
	}
	return v.NumPlayers
}

func (g *Gateway) Redirect(ctx context.Context, code string) types.RedirectAck {
	code = strings.TrimSpace(code)
	if code == "" {
		return types.RedirectAck{OK: false, Error: types.ErrMissingCode}
	}
	if g.lookup(ctx, code) == nil {
		return types.RedirectAck{OK: false, Error: types.ErrRoomNotFound}
	}
	return types.RedirectAck{OK: true, RoomCode: code}
}

func (g *Gateway) lookup(ctx context.Context, code string) *room.Room {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return g.rooms.Get(ctx, code)
}

func (g *Gateway) track(connID, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.memberships[connID]
	if !ok {
		set = make(map[string]struct{})
		g.memberships[connID] = set
	}
	set[code] = struct{}{}
}

func (g *Gateway) untrack(connID, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.memberships[connID], code)
	if len(g.memberships[connID]) == 0 {
		delete(g.memberships, connID)
	}
}

func (g *Gateway) debugIfErr(action, code, connID string, err error) {
	if err != nil {
		g.logger.Debug(action, zap.String("room", code), zap.String("conn", connID), zap.Error(err))
	}
}

func answer(reply Reply, payload any) {
	if reply != nil {
		reply(payload)
	}
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// decodeCode accepts either a bare JSON string or {"code": "..."}.
func decodeCode(data json.RawMessage) (string, error) {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		return code, nil
	}
	var obj struct {
		Code string `json:"code"`
	}
	if err := decode(data, &obj); err != nil {
		return "", err
	}
	return obj.Code, nil
}
