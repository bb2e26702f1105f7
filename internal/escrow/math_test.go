package escrow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		a, b, d uint64
		want    uint64
	}{
		{60, 60, 100, 36},
		{40, 250, BPSDenominator, 1},
		{1, 1, 3, 0},
		{math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64},
		{MaxAmount, MaxAmount - 1, MaxAmount, MaxAmount - 1},
		{5, 5, 0, 0},
		{math.MaxUint64, 2, 1, math.MaxUint64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mulDiv(tt.a, tt.b, tt.d), "mulDiv(%d, %d, %d)", tt.a, tt.b, tt.d)
	}
}

func TestAddAmount(t *testing.T) {
	sum, ok := addAmount(1, 2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), sum)

	_, ok = addAmount(MaxAmount, 1)
	assert.False(t, ok)

	_, ok = addAmount(math.MaxUint64, 1)
	assert.False(t, ok)
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	s := Snapshot{
		Contributions: map[string]uint64{"a": 1},
		Milestones:    []Milestone{{Amount: 5, Voters: map[string]Vote{"a": {Support: true, Weight: 1}}}},
	}
	c := s.clone()
	c.Contributions["a"] = 9
	c.Milestones[0].Amount = 7
	c.Milestones[0].Voters["b"] = Vote{Weight: 2}

	assert.Equal(t, uint64(1), s.Contributions["a"])
	assert.Equal(t, uint64(5), s.Milestones[0].Amount)
	assert.Len(t, s.Milestones[0].Voters, 1)
}
