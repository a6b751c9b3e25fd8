package types

// PlayerView is a roster or scoreboard entry.
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}
