package engine

import (
	"cmp"
	"slices"
)

// Scoreboard returns a copy of players ordered by points, highest first.
// Equal scores keep join order. Rosters, round ends and game ends all use it.
func Scoreboard(players []Player) []Player {
	board := slices.Clone(players)
	slices.SortStableFunc(board, func(a, b Player) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.Joined, b.Joined)
	})
	return board
}

// Winner is the first scoreboard entry; ok is false for an empty room.
func Winner(board []Player) (Player, bool) {
	if len(board) == 0 {
		return Player{}, false
	}
	return board[0], true
}
