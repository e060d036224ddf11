package bitwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingBitCounterTracksSetBits(t *testing.T) {
	c := NewRollingBitCounter(4)
	assert.False(t, c.IsFilled())

	for _, b := range []bool{true, false, true, true} {
		c.Insert(b)
	}
	assert.True(t, c.IsFilled())
	assert.Equal(t, 3, c.SetBits())
}

func TestRollingBitCounterEvictsOldest(t *testing.T) {
	c := NewRollingBitCounter(3)
	for _, b := range []bool{true, true, true} {
		c.Insert(b)
	}
	assert.Equal(t, 3, c.SetBits())

	c.Insert(false) // evicts the oldest true
	assert.Equal(t, 2, c.SetBits())
}

func TestRollingBitCounterInvariantBounds(t *testing.T) {
	c := NewRollingBitCounter(5)
	bits := []bool{true, true, false, true, true, false, true, true, true, false}
	for i, b := range bits {
		c.Insert(b)
		inserted := i + 1
		cap := 5
		upper := inserted
		if cap < upper {
			upper = cap
		}
		assert.LessOrEqual(t, c.SetBits(), upper)
		assert.GreaterOrEqual(t, c.SetBits(), 0)
	}
}

func TestRollingBitCounterSnapshotIsIndependentOfRing(t *testing.T) {
	c := NewRollingBitCounter(4)
	c.Insert(true)
	c.Insert(true)
	assert.Equal(t, 0, c.BitCounter())

	c.ResetCountTo(7)
	assert.Equal(t, 7, c.BitCounter())
	assert.Equal(t, 2, c.SetBits()) // unaffected by the snapshot write
}

func TestRollingBitCounterIncrementBitCounter(t *testing.T) {
	c := NewRollingBitCounter(4)
	c.IncrementBitCounter()
	c.IncrementBitCounter()
	assert.Equal(t, 2, c.BitCounter())
}
