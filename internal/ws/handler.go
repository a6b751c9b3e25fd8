package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/guess-the-track-backend/internal/gateway"
	"github.com/DoyleJ11/guess-the-track-backend/internal/metrics"
	"github.com/DoyleJ11/guess-the-track-backend/internal/types"
)

// Dispatcher is the part of the gateway the socket loop drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID, event string, data json.RawMessage, reply gateway.Reply) error
	Disconnect(ctx context.Context, connID string)
}

type Config struct {
	// In dev ONLY, loosen origin checks, e.g. "localhost:*".
	OriginPatterns []string
	// Inbound frames per second and burst allowed per connection.
	Rate  rate.Limit
	Burst int

	ReadLimit    int64
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

func (c *Config) defaults() {
	if c.Rate == 0 {
		c.Rate = 10
	}
	if c.Burst == 0 {
		c.Burst = 20
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 8 << 10
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
}

func Handler(sb *Switchboard, gw Dispatcher, cfg Config) http.HandlerFunc {
	cfg.defaults()
	logger := cfg.Logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			logger.Debug("accept", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(cfg.ReadLimit)

		connID := uuid.NewString()
		c := sb.register(connID)
		cfg.Metrics.Connections.Inc()
		logger.Debug("connected", zap.String("conn", connID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		defer func() {
			// The request context is already gone; give the rooms a bounded
			// window to process the departure.
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			gw.Disconnect(leaveCtx, connID)
			leaveCancel()
			sb.unregister(connID)
			cfg.Metrics.Connections.Dec()
			logger.Debug("disconnected", zap.String("conn", connID))
		}()

		// Writer goroutine
		go writePump(ctx, cancel, conn, c, cfg)

		limiter := rate.NewLimiter(cfg.Rate, cfg.Burst)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						logger.Debug("read", zap.String("conn", connID), zap.Error(err))
					}
				}
				return
			}

			// Frames over the limit are dropped like any other ignored action.
			if !limiter.Allow() {
				logger.Debug("rate limited", zap.String("conn", connID))
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				sb.SendError(connID, nil, "bad json")
				continue
			}

			if err := gw.Dispatch(ctx, connID, cm.Event, cm.Data, replyFor(sb, connID, cm.Ack)); err != nil {
				sb.SendError(connID, cm.Ack, err.Error())
			}
		}
	}
}

func replyFor(sb *Switchboard, connID string, ack *int64) gateway.Reply {
	if ack == nil {
		return nil
	}
	n := *ack
	return func(payload any) { sb.SendAck(connID, n, payload) }
}

func writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client, cfg Config) {
	defer cancel()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.closed:
			_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			return

		case b := <-c.out:
			wctx, wcancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, b)
			wcancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
