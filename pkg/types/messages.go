package types

// Client -> Server
//
// joinGame   {code, name}      ack: JoinAck
// startRound code              (host only, otherwise ignored)
// guess      {code, guess}     (wrong, duplicate or late guesses are ignored)
// leaveGame  code
// setName    {code, name}
// createGame                   ack: CreateAck
// size       code              ack: number of players
// redirect   code              ack: RedirectAck
//
// Frames beyond the per-connection rate limit are dropped without a reply.
//
// Server -> Client
//
// roster       []PlayerView, points desc, ties by join order
// roundStart   RoundStart
// correctGuess CorrectGuess
// roundEnd     RoundEnd
// gameEnd      []PlayerView, winner first
// hostChanged  HostChanged

const (
	EventJoinGame   = "joinGame"
	EventStartRound = "startRound"
	EventGuess      = "guess"
	EventLeaveGame  = "leaveGame"
	EventSetName    = "setName"
	EventCreateGame = "createGame"
	EventSize       = "size"
	EventRedirect   = "redirect"

	EventRoster       = "roster"
	EventRoundStart   = "roundStart"
	EventCorrectGuess = "correctGuess"
	EventRoundEnd     = "roundEnd"
	EventGameEnd      = "gameEnd"
	EventHostChanged  = "hostChanged"
)

// Rejection messages surfaced through acknowledgements.
const (
	ErrMissingCode  = "Missing code"
	ErrRoomNotFound = "Room not found"
	ErrRoomFull     = "Room is full"
	ErrGameEnded    = "Game has ended"
	ErrUnavailable  = "Service unavailable"
)

type JoinGameRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type GuessRequest struct {
	Code  string `json:"code"`
	Guess string `json:"guess"`
}

type SetNameRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type JoinAck struct {
	OK        bool        `json:"ok"`
	RoomCode  string      `json:"roomCode,omitempty"`
	Me        *PlayerView `json:"me,omitempty"`
	IsCreator bool        `json:"isCreator"`
	Error     string      `json:"error,omitempty"`
}

type CreateAck struct {
	OK       bool   `json:"ok"`
	RoomCode string `json:"roomCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RedirectAck struct {
	OK       bool   `json:"ok"`
	RoomCode string `json:"roomCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Track struct {
	Src string `json:"src"`
}

type RoundStart struct {
	Track       Track `json:"track"`
	Round       int   `json:"round"`
	TotalRounds int   `json:"totalRounds"`
	Duration    int64 `json:"duration"` // milliseconds
}

type CorrectGuess struct {
	PlayerID      string `json:"playerId"`
	PointsAwarded int    `json:"pointsAwarded"`
}

type RoundEnd struct {
	TrackName  string       `json:"trackName"`
	Scoreboard []PlayerView `json:"scoreboard"`
}

type HostChanged struct {
	PlayerID string `json:"playerId"`
}
