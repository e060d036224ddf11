// Package host implements the per-host scheduler: a training worker and a
// detection worker sharing a dimension map, a RollingBitWindow that turns
// the host's anomaly rate into anomaly events, and a shared EventStore
// reference.
package host

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/hostml/adengine/bitwindow"
	"github.com/hostml/adengine/config"
	"github.com/hostml/adengine/dimension"
	mlerrors "github.com/hostml/adengine/errors"
	"github.com/hostml/adengine/eventstore"
	"github.com/hostml/adengine/metrics"
	"github.com/hostml/adengine/storage"
)

// DetectorName and DetectorVersion are the hard-coded identity every
// AnomalyEvent this engine writes carries: inserts are always ("AD1", 1);
// queries stay parameterized so future detectors can coexist in the store.
const (
	DetectorName    = "AD1"
	DetectorVersion = 1
)

// ChartSink is the host agent's own charting facility, where the engine
// publishes its derived time series. A nil sink is valid — ticks simply
// skip publication.
type ChartSink interface {
	// PublishHostRate writes the per-tick, per-host (num_total,
	// num_anomalous, rate*100) triple.
	PublishHostRate(hostUUID uuid.UUID, numTotal, numAnomalous int, ratePercent float64)
	// PublishDimensionScore writes one dimension's scaled anomaly score
	// (score*10000, integer) to its sidecar chart.
	PublishDimensionScore(chartName string, scaledScore int64)
}

// Host owns one monitored host's dimension set and its two long-lived
// workers. The dimension map's mutex is held only for insert, remove, and
// the per-iteration snapshot; the RollingBitWindow and anomalyRate are
// private to the detection worker and need no locking.
type Host struct {
	uuid     uuid.UUID
	hostname string

	cfg   *config.Config
	src   storage.Source
	store eventstore.Store
	sink  ChartSink
	log   logr.Logger
	m     *metrics.Metrics

	mu   sync.Mutex
	dims map[string]*dimension.Dimension

	window      *bitwindow.Window
	anomalyRate float64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a Host with a fresh random UUID and an empty dimension set.
// Workers are not started; call Start for that.
func New(hostname string, cfg *config.Config, src storage.Source, store eventstore.Store, sink ChartSink, log logr.Logger, m *metrics.Metrics) *Host {
	return &Host{
		uuid:     uuid.New(),
		hostname: hostname,
		cfg:      cfg,
		src:      src,
		store:    store,
		sink:     sink,
		log:      log.WithValues("host", hostname),
		m:        m,
		dims:     make(map[string]*dimension.Dimension),
		window:   bitwindow.New(cfg.ADWindowSize, cfg.ADThreshold()),
		stopCh:   make(chan struct{}),
	}
}

// UUID is this host's identifier for events and k-means seeding.
func (h *Host) UUID() uuid.UUID { return h.uuid }

// Hostname is the name new_dimension/delete_dimension callers know this
// host by.
func (h *Host) Hostname() string { return h.hostname }

// AddDimension registers a new monitored series and returns it.
func (h *Host) AddDimension(handle storage.Handle, id, name string, updateEvery int64) *dimension.Dimension {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := dimension.New(handle, id, name, updateEvery, h.cfg)
	h.dims[id] = d
	return d
}

// RemoveDimension drops a dimension. Re-adding the same id afterward
// builds a fresh Dimension from New — there is no way to resurrect the
// old model.
func (h *Host) RemoveDimension(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.dims, id)
}

// Dimension looks up a dimension by id.
func (h *Host) Dimension(id string) (*dimension.Dimension, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.dims[id]
	return d, ok
}

// IsAnomalous reports the cached anomaly bit for a dimension. The map
// lookup is a brief mutex hold; the bit itself is an atomic load, never
// blocked by the dimension's training lock.
func (h *Host) IsAnomalous(id string) bool {
	h.mu.Lock()
	d, ok := h.dims[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return d.Bit()
}

// AnomalyRate returns the host's current detection-worker-private
// anomaly rate, for tests driving Tick synchronously.
func (h *Host) AnomalyRate() float64 { return h.anomalyRate }

// WindowState returns the host's RollingBitWindow state, for tests.
func (h *Host) WindowState() bitwindow.State { return h.window.State() }

// DimensionCount reports the current number of registered dimensions.
func (h *Host) DimensionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.dims)
}

func (h *Host) snapshotDimensions() []*dimension.Dimension {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*dimension.Dimension, 0, len(h.dims))
	for _, d := range h.dims {
		out = append(out, d)
	}
	return out
}

// Start launches the training and detection workers.
func (h *Host) Start() {
	h.wg.Add(2)
	go h.trainingWorker()
	go h.detectionWorker()
}

// Stop signals both workers and waits for their current iteration to
// finish. An in-progress Train call always runs to completion.
func (h *Host) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}

// trainingWorker runs the training loop: one Success per iteration, then
// a sleep sized to spread the full sweep across TrainEvery.
func (h *Host) trainingWorker() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stopCh:
			return
		default:
		}

		start := time.Now()
		now := start.Unix()

		dims := h.snapshotDimensions()
		for _, d := range dims {
			kind := d.Train(now, h.uuid, h.src, h.cfg)
			h.recordTrainResult(kind)
			if kind == mlerrors.Success {
				break
			}
		}

		elapsed := time.Since(start)
		allotted := h.cfg.TrainEvery / time.Duration(len(dims)+1)
		sleep := allotted - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-h.stopCh:
			return
		case <-time.After(sleep):
		}
	}
}

func (h *Host) recordTrainResult(kind mlerrors.Kind) {
	if h.m == nil {
		return
	}
	h.m.TrainResultsTotal.WithLabelValues(kind.String()).Inc()
}

// detectionWorker runs the detection loop: a 10-second warm-up, then a
// 1-second cadence for the rest of the host's lifetime.
func (h *Host) detectionWorker() {
	defer h.wg.Done()

	select {
	case <-h.stopCh:
		return
	case <-time.After(10 * time.Second):
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.Tick(time.Now().Unix())
		}
	}
}

// Tick runs one detection iteration: feed the host rate through the
// RollingBitWindow, rebaseline on a Below-Below roundtrip, predict every
// dimension, publish the host and per-dimension chart values, and emit
// an AnomalyEvent on a closing edge. Exported so tests can drive the
// detection state machine without waiting on real wall-clock ticks.
func (h *Host) Tick(now int64) {
	tickStart := time.Now()
	if h.m != nil {
		defer func() {
			h.m.DetectionTicksTotal.Inc()
			h.m.DetectionTickSeconds.Observe(time.Since(tickStart).Seconds())
		}()
	}

	above := h.anomalyRate >= h.cfg.AnomalyRateThreshold
	edge, previousLength := h.window.Insert(above)

	dims := h.snapshotDimensions()

	if edge.BelowRoundtrip() {
		for _, d := range dims {
			d.ResetContribution()
		}
	}

	numAnomalous := 0
	for _, d := range dims {
		_, bit := d.Predict(h.src, h.cfg, now)
		if bit {
			numAnomalous++
		}
	}

	numTotal := len(dims)
	if numTotal == 0 {
		h.anomalyRate = 0
	} else {
		h.anomalyRate = float64(numAnomalous) / float64(numTotal)
	}

	if h.m != nil {
		h.m.HostAnomalyRate.WithLabelValues(h.uuid.String()).Set(h.anomalyRate)
		h.m.HostDimensionsActive.WithLabelValues(h.uuid.String()).Set(float64(numTotal))
	}

	if h.sink != nil {
		h.sink.PublishHostRate(h.uuid, numTotal, numAnomalous, h.anomalyRate*100)
		for _, d := range dims {
			h.sink.PublishDimensionScore(sidecarChartName(d.Name), int64(d.Score()*10000))
		}
	}

	if edge.Closing() {
		h.emitAnomalyEvent(now, previousLength, dims)
	}
}

// dimensionContribution is one ranked entry of an AnomalyEvent's
// payload-json: the dimensions whose per-window contribution rate met
// ADUnitRateThreshold, descending by rate.
type dimensionContribution struct {
	DimensionID string  `json:"dimension_id"`
	Name        string  `json:"name"`
	Rate        float64 `json:"rate"`
}

func (h *Host) emitAnomalyEvent(now int64, previousLength int, dims []*dimension.Dimension) {
	contributions := make([]dimensionContribution, 0, len(dims))
	for _, d := range dims {
		rate := d.AnomalyRate(previousLength)
		if rate >= h.cfg.ADUnitRateThreshold {
			contributions = append(contributions, dimensionContribution{
				DimensionID: d.ID,
				Name:        d.Name,
				Rate:        rate,
			})
		}
	}

	if len(contributions) == 0 {
		h.log.Info("anomaly event dropped: no dimension met unit rate threshold")
		return
	}

	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].Rate > contributions[j].Rate
	})

	payload, err := json.Marshal(contributions)
	if err != nil {
		h.log.Error(err, "failed to marshal anomaly event payload")
		return
	}

	after := now - int64(previousLength)
	if err := h.store.Insert(context.Background(), DetectorName, DetectorVersion, h.uuid, after, now, payload); err != nil {
		h.log.Error(err, "failed to persist anomaly event")
		return
	}

	if h.m != nil {
		h.m.AnomalyEventsTotal.Inc()
	}
}

// sidecarChartName derives a dimension's "_km" score chart name from its
// source chart name: strip the prefix before the first '.', then append
// "_km".
func sidecarChartName(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[idx+1:] + "_km"
	}
	return name + "_km"
}
