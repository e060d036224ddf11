package host

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostml/adengine/config"
	mlerrors "github.com/hostml/adengine/errors"
	"github.com/hostml/adengine/eventstore"
	"github.com/hostml/adengine/storage"
)

// switchSource lets a test swap the series between ticks: training pulls
// see one series, the detection ticks that follow see another.
type switchSource struct {
	samples []storage.TimedSample
}

func (s *switchSource) Open(storage.Handle) storage.Query {
	return storage.NewSliceQuery(s.samples)
}

// irregularSeries is an aperiodic but deterministic signal with enough
// variation that k-means fits centroids with max_dist > 0.
func irregularSeries(start int64, n int) []storage.TimedSample {
	out := make([]storage.TimedSample, n)
	for i := 0; i < n; i++ {
		out[i] = storage.TimedSample{
			Time:  start + int64(i),
			Value: storage.Pack(float64((i * 37) % 11)),
		}
	}
	return out
}

// swingSeries alternates between 0 and 10000 so its differenced features
// sit far outside anything irregularSeries trains on.
func swingSeries(start int64, n int) []storage.TimedSample {
	out := make([]storage.TimedSample, n)
	for i := 0; i < n; i++ {
		v := 0.0
		if (start+int64(i))%2 != 0 {
			v = 10000.0
		}
		out[i] = storage.TimedSample{Time: start + int64(i), Value: storage.Pack(v)}
	}
	return out
}

func detectorConfig() *config.Config {
	cfg := config.Load(nil)
	cfg.DiffN, cfg.SmoothN, cfg.LagN = 1, 3, 5
	cfg.TrainSecs = 60 * time.Second
	cfg.MinTrainSecs = 30 * time.Second
	cfg.TrainEvery = 0
	cfg.ADWindowSize = 4
	cfg.ADWindowRateThreshold = 1.0 // threshold = 4: above only on 4 consecutive above-bits
	cfg.AnomalyRateThreshold = 0.5
	cfg.ADUnitRateThreshold = 0.1
	return cfg
}

type recordSink struct {
	hostCalls int
	lastRate  float64
	dimScores map[string]int64
}

func (r *recordSink) PublishHostRate(_ uuid.UUID, _, _ int, ratePercent float64) {
	r.hostCalls++
	r.lastRate = ratePercent
}

func (r *recordSink) PublishDimensionScore(chartName string, scaledScore int64) {
	if r.dimScores == nil {
		r.dimScores = make(map[string]int64)
	}
	r.dimScores[chartName] = scaledScore
}

func TestEventGenerationOnClosingEdge(t *testing.T) {
	cfg := detectorConfig()
	store := eventstore.NewMemStore()
	sink := &recordSink{}
	src := &switchSource{samples: irregularSeries(1000, 100)}
	h := New("web1", cfg, src, store, sink, logr.Discard(), nil)

	d1 := h.AddDimension(nil, "dim1", "system.cpu.user", 1)
	d2 := h.AddDimension(nil, "dim2", "system.cpu.system", 1)

	require.Equal(t, mlerrors.Success, d1.Train(1100, h.UUID(), src, cfg))
	require.Equal(t, mlerrors.Success, d2.Train(1100, h.UUID(), src, cfg))

	// Every detection pull from here on sees wild swings the models never
	// trained on, so both dimensions score 1.0 and set their bits.
	src.samples = swingSeries(2900, 200)

	// Hold the host rate above threshold for ten ticks, then drop it. The
	// window (size 4, threshold 4) fills Above at tick 4 and grows to
	// length 10 by tick 10; tick 11 closes the run.
	for i := int64(1); i <= 10; i++ {
		h.anomalyRate = 1.0
		h.Tick(3000 + i)
	}
	h.anomalyRate = 0
	h.Tick(3011)

	ctx := context.Background()
	ranges, err := store.Range(ctx, DetectorName, DetectorVersion, h.UUID(), 0, 1<<40)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(10), ranges[0].Before-ranges[0].After)
	assert.Equal(t, int64(3011), ranges[0].Before)

	payloads, err := store.Info(ctx, DetectorName, DetectorVersion, h.UUID(), 0, 1<<40)
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var entries []struct {
		DimensionID string  `json:"dimension_id"`
		Name        string  `json:"name"`
		Rate        float64 `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(payloads[0], &entries))
	require.Len(t, entries, 2)
	ids := []string{entries[0].DimensionID, entries[1].DimensionID}
	assert.ElementsMatch(t, []string{"dim1", "dim2"}, ids)
	assert.GreaterOrEqual(t, entries[0].Rate, entries[1].Rate)
	for _, e := range entries {
		assert.GreaterOrEqual(t, e.Rate, cfg.ADUnitRateThreshold)
	}

	assert.True(t, h.IsAnomalous("dim1"))
	assert.True(t, h.IsAnomalous("dim2"))
	assert.False(t, h.IsAnomalous("missing"))

	// Both dimensions anomalous on the last tick: rate published as 100%.
	assert.Equal(t, 11, sink.hostCalls)
	assert.Equal(t, 100.0, sink.lastRate)
	assert.Equal(t, int64(10000), sink.dimScores["cpu.user_km"])
	assert.Equal(t, int64(10000), sink.dimScores["cpu.system_km"])
}

func TestClosingEdgeWithNoQualifyingDimensionWritesNothing(t *testing.T) {
	cfg := detectorConfig()
	store := eventstore.NewMemStore()
	h := New("web1", cfg, &switchSource{}, store, nil, logr.Discard(), nil)

	for i := int64(1); i <= 10; i++ {
		h.anomalyRate = 1.0
		h.Tick(3000 + i)
	}
	h.anomalyRate = 0
	h.Tick(3011)

	ranges, err := store.Range(context.Background(), DetectorName, DetectorVersion, h.UUID(), 0, 1<<40)
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestRemoveThenReAddDimensionYieldsUntrainedModel(t *testing.T) {
	cfg := detectorConfig()
	src := &switchSource{samples: irregularSeries(1000, 100)}
	h := New("web1", cfg, src, eventstore.NewMemStore(), nil, logr.Discard(), nil)

	d := h.AddDimension(nil, "dim1", "system.cpu.user", 1)
	require.Equal(t, mlerrors.Success, d.Train(1100, h.UUID(), src, cfg))
	require.True(t, d.Trained())

	h.RemoveDimension("dim1")
	assert.Equal(t, 0, h.DimensionCount())

	d = h.AddDimension(nil, "dim1", "system.cpu.user", 1)
	assert.False(t, d.Trained())
}

func TestSidecarChartName(t *testing.T) {
	assert.Equal(t, "cpu_km", sidecarChartName("system.cpu"))
	assert.Equal(t, "cpu.user_km", sidecarChartName("system.cpu.user"))
	assert.Equal(t, "apps_cpu_km", sidecarChartName("apps_cpu"))
}

func TestStartStopJoinsWorkers(t *testing.T) {
	cfg := config.Load(nil)
	h := New("web1", cfg, &switchSource{}, eventstore.NewMemStore(), nil, logr.Discard(), nil)
	h.Start()

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}
