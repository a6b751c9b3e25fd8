package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
)

// ErrRoomClosed is returned once the room has torn itself down. Callers
// holding a stale pointer should resolve the code again through the hub.
var ErrRoomClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	PlayerID string
	Name     string
	// OnJoined runs on the room goroutine after the player is admitted and
	// before any broadcast, so the caller can subscribe and acknowledge first.
	OnJoined func(JoinResult)
	Reply    chan JoinReply
}

func (Join) isRoomMsg() {}

type Leave struct {
	PlayerID string
	Reply    chan error
}

func (Leave) isRoomMsg() {}

type Rename struct {
	PlayerID string
	Name     string
}

func (Rename) isRoomMsg() {}

type StartRound struct{ PlayerID string }

func (StartRound) isRoomMsg() {}

type Guess struct {
	PlayerID string
	Text     string
}

func (Guess) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type timerFired struct {
	gen     uint64
	ordinal int
}

func (timerFired) isRoomMsg() {}

type graceExpired struct{}

func (graceExpired) isRoomMsg() {}

type JoinResult struct {
	Code   string
	Player engine.Player
	IsHost bool
}

type JoinReply struct {
	Result JoinResult
	Err    error
}

type View struct {
	Code       string
	Phase      engine.Phase
	NumPlayers int
	TimerArmed bool
	State      engine.State
}

// Publisher receives the events of every applied command, in order, on the
// room goroutine. Implementations must not block.
type Publisher interface {
	Publish(code string, events []engine.Event)
}

type ItemSource interface {
	Next() engine.Item
}

type Options struct {
	Code      string
	Rules     engine.Rules
	Items     ItemSource
	Publisher Publisher
	Logger    *zap.Logger
	// EmptyGrace closes a room nobody joined within the given duration.
	// Zero disables it.
	EmptyGrace time.Duration
	// OnClose is called from the room goroutine once the room is torn down.
	OnClose func(*Room)
	Now     func() time.Time
}

type Room struct {
	code      string
	inbox     chan Msg
	state     engine.State
	items     ItemSource
	publisher Publisher
	logger    *zap.Logger
	onClose   func(*Room)
	now       func() time.Time

	timer    *time.Timer
	timerGen uint64
	grace    *time.Timer

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func New(parent context.Context, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		code:      opts.Code,
		inbox:     make(chan Msg, 64), // Small buffer
		state:     engine.NewState(opts.Code, opts.Rules),
		items:     opts.Items,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		onClose:   opts.OnClose,
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if r.publisher == nil {
		r.publisher = nopPublisher{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("room", opts.Code))
	if r.now == nil {
		r.now = time.Now
	}
	if opts.EmptyGrace > 0 {
		r.grace = time.AfterFunc(opts.EmptyGrace, func() {
			_ = r.post(context.Background(), graceExpired{})
		})
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Done is closed when the room has stopped processing messages.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Close tears the room down without waiting for queued messages.
func (r *Room) Close() { r.cancel() }

func (r *Room) Join(ctx context.Context, playerID, name string, onJoined func(JoinResult)) (JoinResult, error) {
	reply := make(chan JoinReply, 1)
	if err := r.post(ctx, Join{PlayerID: playerID, Name: name, OnJoined: onJoined, Reply: reply}); err != nil {
		return JoinResult{}, err
	}
	select {
	case rep := <-reply:
		return rep.Result, rep.Err
	case <-r.done:
		return JoinResult{}, ErrRoomClosed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

func (r *Room) Leave(ctx context.Context, playerID string) error {
	reply := make(chan error, 1)
	if err := r.post(ctx, Leave{PlayerID: playerID, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		// The room closed, so the player is gone either way.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartRound, Guess and Rename only enqueue; invalid requests are dropped by
// the room without feedback.
func (r *Room) StartRound(ctx context.Context, playerID string) error {
	return r.post(ctx, StartRound{PlayerID: playerID})
}

func (r *Room) Guess(ctx context.Context, playerID, text string) error {
	return r.post(ctx, Guess{PlayerID: playerID, Text: text})
}

func (r *Room) Rename(ctx context.Context, playerID, name string) error {
	return r.post(ctx, Rename{PlayerID: playerID, Name: name})
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.post(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrRoomClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Inbox exposes the raw message channel for tests and in-process callers.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) post(ctx context.Context, m Msg) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) loop() {
	defer r.teardown()
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			if stop := r.handle(m); stop {
				return
			}
		}
	}
}

// handle reports whether the room should stop.
func (r *Room) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		events, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdJoin, PlayerID: msg.PlayerID, Name: msg.Name})
		if err != nil {
			r.logger.Info("join rejected", zap.String("player", msg.PlayerID), zap.Error(err))
			msg.Reply <- JoinReply{Err: err}
			return false
		}
		r.state = next
		r.stopGrace()

		p, _ := r.state.Player(msg.PlayerID)
		res := JoinResult{Code: r.code, Player: p, IsHost: r.state.IsHost(p.ID)}
		if msg.OnJoined != nil {
			msg.OnJoined(res)
		}
		msg.Reply <- JoinReply{Result: res}
		return r.commit(events)

	case Leave:
		events, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdLeave, PlayerID: msg.PlayerID})
		if err != nil {
			r.ignore("leave", msg.PlayerID, err)
			msg.Reply <- err
			return false
		}
		r.state = next
		stop := r.commit(events)
		if stop {
			// Unregister before the caller observes the departure.
			r.teardown()
		}
		msg.Reply <- nil
		return stop

	case Rename:
		return r.apply("rename", engine.Command{Type: engine.CmdRename, PlayerID: msg.PlayerID, Name: msg.Name})

	case StartRound:
		if err := engine.CanStartRound(r.state, msg.PlayerID); err != nil {
			r.ignore("startRound", msg.PlayerID, err)
			return false
		}
		return r.apply("startRound", engine.Command{
			Type:     engine.CmdStartRound,
			PlayerID: msg.PlayerID,
			Item:     r.items.Next(),
			Now:      r.now(),
		})

	case Guess:
		return r.apply("guess", engine.Command{Type: engine.CmdGuess, PlayerID: msg.PlayerID, Text: msg.Text})

	case timerFired:
		if msg.gen != r.timerGen {
			// Armed for a round that already resolved.
			return false
		}
		r.timer = nil
		return r.apply("deadline", engine.Command{Type: engine.CmdResolveRound, Ordinal: msg.ordinal})

	case graceExpired:
		if len(r.state.Players) == 0 {
			r.logger.Info("closing unused room")
			return true
		}

	case GetState:
		// test-only: reflect internal state without data races
		msg.Reply <- View{
			Code:       r.code,
			Phase:      engine.DerivePhase(r.state),
			NumPlayers: len(r.state.Players),
			TimerArmed: r.timer != nil,
			State:      r.state,
		}

	case Shutdown:
		return true
	}
	return false
}

func (r *Room) apply(action string, cmd engine.Command) bool {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.ignore(action, cmd.PlayerID, err)
		return false
	}
	r.state = next
	return r.commit(events)
}

// commit schedules or cancels the deadline for the applied events and
// publishes them. It reports whether the room became empty.
func (r *Room) commit(events []engine.Event) bool {
	emptied := false
	for _, e := range events {
		switch e.Type {
		case engine.EvtRoundStarted:
			r.armTimer(e.Round, e.Duration)
			r.logger.Info("round started", zap.Int("round", e.Round), zap.String("item", e.Item.ID))
		case engine.EvtRoundEnded:
			r.stopTimer()
			r.logger.Info("round ended", zap.Int("round", e.Round))
		case engine.EvtGameEnded:
			w, _ := engine.Winner(e.Scoreboard)
			r.logger.Info("game ended", zap.String("winner", w.ID), zap.Int("points", w.Points))
		case engine.EvtRoomEmptied:
			emptied = true
		}
	}
	r.publisher.Publish(r.code, events)
	return emptied
}

func (r *Room) ignore(action, playerID string, err error) {
	r.logger.Debug("ignored", zap.String("action", action), zap.String("player", playerID), zap.Error(err))
}

func (r *Room) armTimer(ordinal int, d time.Duration) {
	r.stopTimer()
	gen := r.timerGen
	r.timer = time.AfterFunc(d, func() {
		_ = r.post(context.Background(), timerFired{gen: gen, ordinal: ordinal})
	})
}

// stopTimer also invalidates a fire that is already queued in the inbox.
func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

func (r *Room) stopGrace() {
	if r.grace != nil {
		r.grace.Stop()
		r.grace = nil
	}
}

func (r *Room) teardown() {
	r.closeOnce.Do(func() {
		r.stopTimer()
		r.stopGrace()
		r.cancel()
		close(r.done)
		r.logger.Info("room closed")
		if r.onClose != nil {
			r.onClose(r)
		}
	})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, []engine.Event) {}
