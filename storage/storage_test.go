package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackDecodeRoundTrip(t *testing.T) {
	s := Pack(42.5)
	present, v := s.Decode()
	assert.True(t, present)
	assert.InDelta(t, 42.5, v, 1e-6)
}

func TestMissingDecode(t *testing.T) {
	present, v := Missing.Decode()
	assert.False(t, present)
	assert.Equal(t, 0.0, v)
}

func TestSliceQueryIteratesInOrder(t *testing.T) {
	q := NewSliceQuery([]TimedSample{
		{Time: 30, Value: Pack(3)},
		{Time: 10, Value: Pack(1)},
		{Time: 20, Value: Pack(2)},
	})
	require := assert.New(t)
	require.NoError(q.Init(0, 100))
	var times []int64
	for !q.IsFinished() {
		tm, _, err := q.NextMetric()
		require.NoError(err)
		times = append(times, tm)
	}
	require.Equal([]int64{10, 20, 30}, times)
}

func TestSliceQueryRespectsRange(t *testing.T) {
	q := NewSliceQuery([]TimedSample{
		{Time: 10, Value: Pack(1)},
		{Time: 20, Value: Pack(2)},
		{Time: 30, Value: Pack(3)},
	})
	assert.NoError(t, q.Init(10, 20))
	var count int
	for !q.IsFinished() {
		q.NextMetric()
		count++
	}
	assert.Equal(t, 1, count) // only t=20 is in (10, 20]
}
