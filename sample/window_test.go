package sample

import (
	"testing"

	mlerrors "github.com/hostml/adengine/errors"
	"github.com/hostml/adengine/storage"
	"github.com/stretchr/testify/assert"
)

func buildSeries(startTime, step int64, values []float64) storage.SliceSource {
	samples := make([]storage.TimedSample, len(values))
	for i, v := range values {
		samples[i] = storage.TimedSample{Time: startTime + int64(i)*step, Value: storage.Pack(v)}
	}
	return storage.SliceSource{Samples: samples}
}

func TestPullHappyPath(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	src := buildSeries(0, 1, values)
	now := int64(500)

	w, err := Pull(src, nil, now, 1, 40, 30)
	assert.NoError(t, err)
	assert.Equal(t, 40, w.Collected)
	assert.Len(t, w.Values, 40)
}

func TestPullMissingDataGate(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 1.0
	}
	src := buildSeries(1000, 1, values)
	now := int64(1021)

	_, err := Pull(src, nil, now, 1, 40, 30)
	assert.True(t, mlerrors.Is(err, mlerrors.MissingData))
}

func TestPullEmptyRangeIsNoData(t *testing.T) {
	src := buildSeries(1000, 1, []float64{1, 2, 3})
	// now far in the past relative to the series: after >= before.
	w, err := Pull(src, nil, 10, 1, 5, 1)
	assert.True(t, mlerrors.Is(err, mlerrors.NoData))
	assert.Equal(t, 0, w.Collected)
}

func TestPullCarriesForwardMissing(t *testing.T) {
	samples := []storage.TimedSample{
		{Time: 990, Value: storage.Pack(5)},
		{Time: 1000, Value: storage.Pack(5)},
		{Time: 1001, Value: storage.Missing},
		{Time: 1002, Value: storage.Pack(7)},
	}
	src := storage.SliceSource{Samples: samples}
	// after=999, before=1002 (clipped to latest): iterates t=1000,1001,1002.
	w, err := Pull(src, nil, 1004, 1, 4, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, w.Collected)
	assert.Len(t, w.Values, 3)
	assert.InDelta(t, 5, w.Values[0], 1e-6)
	assert.InDelta(t, 5, w.Values[1], 1e-6) // carried forward
	assert.InDelta(t, 7, w.Values[2], 1e-6)
}

func TestFillRatio(t *testing.T) {
	w := &Window{Values: make([]float64, 10), Collected: 4}
	assert.InDelta(t, 0.4, w.FillRatio(), 1e-9)
}
