package engine

// Points awarded by arrival rank among correct guesses within one round.
var payoutTable = []int{
	1000, // 1st
	700,  // 2nd
	400,  // 3rd
	200,  // 4th
}

func DefaultPayouts() []int {
	return append([]int(nil), payoutTable...)
}

// payoutFor returns zero for ranks beyond the table.
func payoutFor(payouts []int, rank int) int {
	if rank < 0 || rank >= len(payouts) {
		return 0
	}
	return payouts[rank]
}
