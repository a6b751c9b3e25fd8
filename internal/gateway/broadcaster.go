package gateway

import (
	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
	"github.com/DoyleJ11/guess-the-track-backend/internal/metrics"
	"github.com/DoyleJ11/guess-the-track-backend/pkg/types"
)

// Broadcaster turns the events a room produced into room-scoped transport
// broadcasts. Rooms call Publish from their own goroutine, which keeps the
// per-room order of broadcasts identical to the order of state changes.
type Broadcaster struct {
	transport Transport
	metrics   *metrics.Metrics
}

func NewBroadcaster(t Transport, m *metrics.Metrics) *Broadcaster {
	if m == nil {
		m = metrics.New()
	}
	return &Broadcaster{transport: t, metrics: m}
}

func (b *Broadcaster) Publish(code string, events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtRosterUpdated:
			b.transport.Broadcast(code, types.EventRoster, PlayerViews(e.Scoreboard))

		case engine.EvtRoundStarted:
			b.metrics.RoundsStarted.Inc()
			b.transport.Broadcast(code, types.EventRoundStart, types.RoundStart{
				Track:       types.Track{Src: e.Item.MediaRef},
				Round:       e.Round,
				TotalRounds: e.TotalRounds,
				Duration:    e.Duration.Milliseconds(),
			})

		case engine.EvtCorrectGuess:
			b.metrics.CorrectGuesses.Inc()
			b.transport.Broadcast(code, types.EventCorrectGuess, types.CorrectGuess{
				PlayerID:      e.PlayerID,
				PointsAwarded: e.Points,
			})

		case engine.EvtRoundEnded:
			b.transport.Broadcast(code, types.EventRoundEnd, types.RoundEnd{
				TrackName:  trackName(e.Item),
				Scoreboard: PlayerViews(e.Scoreboard),
			})

		case engine.EvtGameEnded:
			b.metrics.GamesEnded.Inc()
			b.transport.Broadcast(code, types.EventGameEnd, PlayerViews(e.Scoreboard))

		case engine.EvtHostChanged:
			b.transport.Broadcast(code, types.EventHostChanged, types.HostChanged{PlayerID: e.PlayerID})
		}
		// Joins, leaves and renames reach clients through the roster.
	}
}

// trackName is the title as stored, falling back to the answer key for
// items that carry none.
func trackName(it engine.Item) string {
	if it.Title != "" {
		return it.Title
	}
	return it.AnswerKey
}

func PlayerViews(players []engine.Player) []types.PlayerView {
	out := make([]types.PlayerView, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerView(p))
	}
	return out
}

func PlayerView(p engine.Player) types.PlayerView {
	return types.PlayerView{ID: p.ID, Name: p.Name, Points: p.Points}
}
