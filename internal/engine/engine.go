package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrRoomFull = errors.New("room is full")
var ErrGameEnded = errors.New("game has ended")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrNotHost = errors.New("only the host can start a round")
var ErrRoundInProgress = errors.New("round already in progress")
var ErrNoActiveRound = errors.New("no active round")
var ErrStaleRound = errors.New("stale round")
var ErrAlreadyGuessed = errors.New("player already guessed this round")
var ErrWrongAnswer = errors.New("wrong answer")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

type HostSuccession string

const (
	// SuccessionPromote hands the host role to the earliest remaining joiner.
	SuccessionPromote HostSuccession = "promote"
	// SuccessionNone leaves the room without a host once the host leaves;
	// no further rounds can be started.
	SuccessionNone HostSuccession = "none"
)

type Player struct {
	ID     string
	Name   string
	Points int
	Joined int // join sequence, used as the scoreboard tie-break
}

// Item is an opaque catalog entry. AnswerKey is compared against
// normalized guesses; Title and MediaRef are handed to clients untouched.
type Item struct {
	ID        string
	Title     string
	AnswerKey string
	MediaRef  string
}

type Guess struct {
	PlayerID string
	Rank     int
}

type Round struct {
	Item      Item
	Ordinal   int
	StartedAt time.Time
	Deadline  time.Time
	Guesses   []Guess
	NextRank  int
}

type Rules struct {
	MaxPlayers     int
	TotalRounds    int
	RoundDuration  time.Duration
	Payouts        []int
	HostSuccession HostSuccession
}

type State struct {
	Code         string
	Players      []Player // join order
	HostID       string
	Round        *Round
	RoundsPlayed int
	Rules        Rules
	joinSeq      int
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdLeave        CommandType = "Leave"
	CmdRename       CommandType = "Rename"
	CmdStartRound   CommandType = "StartRound"
	CmdGuess        CommandType = "Guess"
	CmdResolveRound CommandType = "ResolveRound"
)

/*
	CmdJoin         -> EvtPlayerJoined -> EvtRosterUpdated
	CmdLeave        -> EvtPlayerLeft -> (EvtRoomEmptied | EvtHostChanged? -> EvtRosterUpdated -> resolution?)
	CmdRename       -> EvtPlayerRenamed -> EvtRosterUpdated
	CmdStartRound   -> EvtRoundStarted
	CmdGuess        -> EvtCorrectGuess -> EvtRosterUpdated -> resolution when everyone has guessed
	CmdResolveRound -> EvtRoundEnded -> EvtRosterUpdated -> EvtGameEnded after the last round
*/

type Command struct {
	Type     CommandType
	PlayerID string
	Name     string
	Text     string
	Item     Item
	Ordinal  int // ResolveRound: the round the deadline was armed for
	Now      time.Time
}

type EventType string

const (
	EvtPlayerJoined  EventType = "PlayerJoined"
	EvtPlayerLeft    EventType = "PlayerLeft"
	EvtPlayerRenamed EventType = "PlayerRenamed"
	EvtHostChanged   EventType = "HostChanged"
	EvtRosterUpdated EventType = "RosterUpdated"
	EvtRoundStarted  EventType = "RoundStarted"
	EvtCorrectGuess  EventType = "CorrectGuess"
	EvtRoundEnded    EventType = "RoundEnded"
	EvtGameEnded     EventType = "GameEnded"
	EvtRoomEmptied   EventType = "RoomEmptied"
)

type Event struct {
	Type        EventType
	PlayerID    string
	Player      Player
	Points      int
	Rank        int
	Round       int
	TotalRounds int
	Duration    time.Duration
	Item        Item
	Scoreboard  []Player
}

// Apply validates cmd against s and returns the events it produced together
// with the next state. On error the returned state is s, unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdLeave:
		return applyLeave(s, cmd)
	case CmdRename:
		return applyRename(s, cmd)
	case CmdStartRound:
		return applyStartRound(s, cmd)
	case CmdGuess:
		return applyGuess(s, cmd)
	case CmdResolveRound:
		return applyResolveRound(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyJoin(s State, cmd Command) ([]Event, State, error) {
	// Rejoining with the same connection is a no-op.
	if _, ok := s.Player(cmd.PlayerID); ok {
		return nil, s, nil
	}
	if len(s.Players) >= s.Rules.MaxPlayers {
		return nil, s, ErrRoomFull
	}
	if DerivePhase(s) == PhaseEnded {
		return nil, s, ErrGameEnded
	}

	newState := s.clone()
	p := Player{ID: cmd.PlayerID, Name: DisplayName(cmd.PlayerID, cmd.Name), Joined: newState.joinSeq}
	if newState.joinSeq == 0 {
		newState.HostID = p.ID
	}
	newState.joinSeq++
	newState.Players = append(newState.Players, p)

	events := []Event{
		{Type: EvtPlayerJoined, PlayerID: p.ID, Player: p},
		rosterEvent(newState),
	}
	return events, newState, nil
}

func applyLeave(s State, cmd Command) ([]Event, State, error) {
	idx := s.indexOf(cmd.PlayerID)
	if idx < 0 {
		return nil, s, ErrUnknownPlayer
	}

	newState := s.clone()
	newState.Players = slices.Delete(newState.Players, idx, idx+1)
	if newState.Round != nil {
		newState.Round.Guesses = slices.DeleteFunc(newState.Round.Guesses, func(g Guess) bool {
			return g.PlayerID == cmd.PlayerID
		})
	}

	events := []Event{{Type: EvtPlayerLeft, PlayerID: cmd.PlayerID}}

	if len(newState.Players) == 0 {
		newState.Round = nil
		events = append(events, Event{Type: EvtRoomEmptied})
		return events, newState, nil
	}

	if newState.HostID == cmd.PlayerID && newState.Rules.HostSuccession == SuccessionPromote {
		// Players stay in join order, so the first one is the earliest joiner.
		newState.HostID = newState.Players[0].ID
		events = append(events, Event{Type: EvtHostChanged, PlayerID: newState.HostID})
	}
	events = append(events, rosterEvent(newState))

	// The departure may leave only players who already guessed.
	if newState.Round != nil && everyoneGuessed(newState) {
		events = append(events, resolve(&newState)...)
	}
	return events, newState, nil
}

func applyRename(s State, cmd Command) ([]Event, State, error) {
	idx := s.indexOf(cmd.PlayerID)
	if idx < 0 {
		return nil, s, ErrUnknownPlayer
	}

	newState := s.clone()
	if name := trimName(cmd.Name); name != "" {
		newState.Players[idx].Name = name
	}
	events := []Event{
		{Type: EvtPlayerRenamed, PlayerID: cmd.PlayerID, Player: newState.Players[idx]},
		rosterEvent(newState),
	}
	return events, newState, nil
}

func applyStartRound(s State, cmd Command) ([]Event, State, error) {
	if err := CanStartRound(s, cmd.PlayerID); err != nil {
		return nil, s, err
	}

	newState := s.clone()
	item := cmd.Item
	item.AnswerKey = Normalize(item.AnswerKey)

	newState.RoundsPlayed++
	newState.Round = &Round{
		Item:      item,
		Ordinal:   newState.RoundsPlayed,
		StartedAt: cmd.Now,
		Deadline:  cmd.Now.Add(newState.Rules.RoundDuration),
	}

	events := []Event{{
		Type:        EvtRoundStarted,
		PlayerID:    cmd.PlayerID,
		Round:       newState.Round.Ordinal,
		TotalRounds: newState.Rules.TotalRounds,
		Duration:    newState.Rules.RoundDuration,
		Item:        item,
	}}
	return events, newState, nil
}

func applyGuess(s State, cmd Command) ([]Event, State, error) {
	if s.Round == nil {
		return nil, s, ErrNoActiveRound
	}
	idx := s.indexOf(cmd.PlayerID)
	if idx < 0 {
		return nil, s, ErrUnknownPlayer
	}
	if hasGuessed(s.Round, cmd.PlayerID) {
		return nil, s, ErrAlreadyGuessed
	}
	if guess := Normalize(cmd.Text); guess == "" || guess != s.Round.Item.AnswerKey {
		return nil, s, ErrWrongAnswer
	}

	newState := s.clone()
	round := newState.Round
	rank := round.NextRank
	round.NextRank++
	round.Guesses = append(round.Guesses, Guess{PlayerID: cmd.PlayerID, Rank: rank})

	points := payoutFor(newState.Rules.Payouts, rank)
	newState.Players[idx].Points += points

	events := []Event{
		{Type: EvtCorrectGuess, PlayerID: cmd.PlayerID, Points: points, Rank: rank, Round: round.Ordinal},
		rosterEvent(newState),
	}
	if everyoneGuessed(newState) {
		events = append(events, resolve(&newState)...)
	}
	return events, newState, nil
}

func applyResolveRound(s State, cmd Command) ([]Event, State, error) {
	if s.Round == nil {
		return nil, s, ErrNoActiveRound
	}
	if cmd.Ordinal != 0 && cmd.Ordinal != s.Round.Ordinal {
		return nil, s, ErrStaleRound
	}

	newState := s.clone()
	return resolve(&newState), newState, nil
}

// resolve closes the active round of s in place. Callers guarantee a round
// is active, which makes resolution happen at most once per round.
func resolve(s *State) []Event {
	board := Scoreboard(s.Players)
	round := s.Round
	s.Round = nil

	events := []Event{
		{Type: EvtRoundEnded, Round: round.Ordinal, Item: round.Item, Scoreboard: board},
		{Type: EvtRosterUpdated, Scoreboard: board},
	}
	if s.RoundsPlayed >= s.Rules.TotalRounds {
		events = append(events, Event{Type: EvtGameEnded, TotalRounds: s.Rules.TotalRounds, Scoreboard: board})
	}
	return events
}

func everyoneGuessed(s State) bool {
	return len(s.Round.Guesses) >= len(s.Players)
}

func hasGuessed(r *Round, playerID string) bool {
	return slices.ContainsFunc(r.Guesses, func(g Guess) bool { return g.PlayerID == playerID })
}

func rosterEvent(s State) Event {
	return Event{Type: EvtRosterUpdated, Scoreboard: Scoreboard(s.Players)}
}
