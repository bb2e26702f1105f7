package escrow

import (
	"math"
	"math/bits"
)

// mulDiv returns a*b/d with a 128-bit intermediate product. It saturates when
// the quotient does not fit 64 bits.
func mulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// productGTE reports whether a*x >= b*y without overflow.
func productGTE(a, x, b, y uint64) bool {
	ah, al := bits.Mul64(a, x)
	bh, bl := bits.Mul64(b, y)
	return ah > bh || (ah == bh && al >= bl)
}

func addAmount(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 || sum > MaxAmount {
		return 0, false
	}
	return sum, true
}

func subFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Decide evaluates a finished vote. The quorum is met when the votes cast
// reach quorumPercent of everything contributed; the milestone is approved
// when, additionally, votes in favour reach approvalPercent of the votes cast.
func Decide(votesFor, votesAgainst, totalContributed uint64, quorumPercent, approvalPercent uint8) bool {
	if totalContributed == 0 {
		return false
	}
	total, ok := addAmount(votesFor, votesAgainst)
	if !ok || total == 0 {
		return false
	}
	if !productGTE(total, 100, totalContributed, uint64(quorumPercent)) {
		return false
	}
	return productGTE(votesFor, 100, total, uint64(approvalPercent))
}
