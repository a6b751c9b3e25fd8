package engine

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold casers are stateless and safe for concurrent use.
var folder = cases.Fold()

const (
	DefaultMaxPlayers    = 4
	DefaultTotalRounds   = 5
	DefaultRoundDuration = 20 * time.Second
)

func DefaultRules() Rules {
	return Rules{
		MaxPlayers:     DefaultMaxPlayers,
		TotalRounds:    DefaultTotalRounds,
		RoundDuration:  DefaultRoundDuration,
		Payouts:        DefaultPayouts(),
		HostSuccession: SuccessionPromote,
	}
}

func NewState(code string, rules Rules) State {
	return State{
		Code:    code,
		Players: []Player{},
		Rules:   rules,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func DerivePhase(s State) Phase {
	if s.Round != nil {
		return PhaseActive
	} else if s.RoundsPlayed >= s.Rules.TotalRounds {
		return PhaseEnded
	}
	return PhaseIdle
}

// CanStartRound reports why playerID may not start a round right now, or nil.
// The room calls it before drawing an item so ignored requests never consume
// catalog entries.
func CanStartRound(s State, playerID string) error {
	if s.HostID == "" || s.HostID != playerID {
		return ErrNotHost
	}
	if _, ok := s.Player(playerID); !ok {
		return ErrUnknownPlayer
	}
	switch DerivePhase(s) {
	case PhaseActive:
		return ErrRoundInProgress
	case PhaseEnded:
		return ErrGameEnded
	}
	return nil
}

// Normalize trims surrounding whitespace and case-folds text so that guesses
// like "Heartless " match an answer key of "heartless".
func Normalize(text string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(text)))
}

func DisplayName(playerID, name string) string {
	if n := trimName(name); n != "" {
		return n
	}
	short := playerID
	if len(short) > 4 {
		short = short[:4]
	}
	return "Player-" + short
}

func trimName(name string) string {
	return strings.TrimSpace(name)
}

func (s State) Player(id string) (Player, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Players[i], true
	}
	return Player{}, false
}

func (s State) IsHost(id string) bool {
	return id != "" && s.HostID == id
}

func (s State) indexOf(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// clone copies everything Apply may mutate so earlier states stay intact.
func (s State) clone() State {
	c := s
	c.Players = append([]Player(nil), s.Players...)
	if s.Round != nil {
		r := *s.Round
		r.Guesses = append([]Guess(nil), s.Round.Guesses...)
		c.Round = &r
	}
	return c
}
