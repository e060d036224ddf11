// Package dimension models one monitored time series: its k-means model,
// training state, and the cached anomaly score/bit that detection reads
// lock-free.
package dimension

import (
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hostml/adengine/bitwindow"
	"github.com/hostml/adengine/config"
	mlerrors "github.com/hostml/adengine/errors"
	"github.com/hostml/adengine/feature"
	"github.com/hostml/adengine/kmeans"
	"github.com/hostml/adengine/sample"
	"github.com/hostml/adengine/storage"
)

// Dimension owns one monitored series: its model, training state, and
// cached detection output. Exactly one host owns a Dimension at a time;
// the host is the only caller of Train/Predict.
type Dimension struct {
	Handle      storage.Handle
	ID          string
	Name        string
	UpdateEvery int64

	mu      sync.Mutex
	model   *kmeans.Model
	trained bool

	// lastTrainedAt is read by Train's throttle gate before any attempt
	// to acquire mu, and is otherwise only ever written by the single
	// training-worker goroutine that owns this dimension — an atomic,
	// not mu, is what keeps that unlocked read race-free.
	lastTrainedAt atomic.Int64

	// contribution is the per-event RollingBitCounter of capacity DiffN.
	// Two counters coexist here on purpose: the ring bounds memory for
	// the contribution signal, while its independent bitCounter snapshot
	// field is what AnomalyRate/ResetContribution read and rewrite to
	// measure bits accumulated since the last baseline.
	contribution *bitwindow.RollingBitCounter

	cachedScore atomic.Uint64 // float64 bits
	cachedBit   atomic.Bool
}

// New returns an untrained Dimension for handle, with a contribution
// counter sized to cfg.DiffN.
func New(handle storage.Handle, id, name string, updateEvery int64, cfg *config.Config) *Dimension {
	return &Dimension{
		Handle:       handle,
		ID:           id,
		Name:         name,
		UpdateEvery:  updateEvery,
		model:        kmeans.New(),
		contribution: bitwindow.NewRollingBitCounter(cfg.DiffN),
	}
}

// Trained reports whether the model currently has centroids.
func (d *Dimension) Trained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained
}

// Score returns the last cached anomaly score.
func (d *Dimension) Score() float64 {
	return math.Float64frombits(d.cachedScore.Load())
}

// Bit returns the last cached anomaly bit.
func (d *Dimension) Bit() bool {
	return d.cachedBit.Load()
}

func (d *Dimension) setCached(score float64, bit bool) {
	d.cachedScore.Store(math.Float64bits(score))
	d.cachedBit.Store(bit)
}

// Train pulls a training window and refits the model. It returns Success,
// ShouldNotTrainNow, TryLockFailed, or MissingData; never an error value
// the caller needs to unwrap — the Kind is the whole result.
func (d *Dimension) Train(now int64, hostUUID uuid.UUID, src storage.Source, cfg *config.Config) mlerrors.Kind {
	dueAt := d.lastTrainedAt.Load() + int64(cfg.TrainEvery.Seconds())
	if now < dueAt {
		return mlerrors.ShouldNotTrainNow
	}

	if !d.mu.TryLock() {
		return mlerrors.TryLockFailed
	}
	defer d.mu.Unlock()

	d.lastTrainedAt.Store(now)

	n := int(cfg.TrainSecs.Seconds()) / int(d.UpdateEvery)
	minN := int(cfg.MinTrainSecs.Seconds()) / int(d.UpdateEvery)

	window, err := sample.Pull(src, d.Handle, now, d.UpdateEvery, n, minN)
	if err != nil {
		d.trained = false
		return mlerrors.MissingData
	}

	pipeline := feature.Pipeline{DiffN: cfg.DiffN, SmoothN: cfg.SmoothN, LagN: cfg.LagN}
	matrix, err := pipeline.Transform(window.Values)
	if err != nil {
		d.trained = false
		return mlerrors.MissingData
	}

	seed := deterministicSeed(hostUUID, d.ID, now)
	if err := d.model.Train(matrix, seed); err != nil {
		d.trained = false
		return mlerrors.MissingData
	}

	d.trained = true
	return mlerrors.Success
}

// Predict scores the latest sample window and refreshes the cached
// score/bit. It never blocks: if the training lock is held, it returns
// the last cached values unchanged.
func (d *Dimension) Predict(src storage.Source, cfg *config.Config, now int64) (float64, bool) {
	if !d.mu.TryLock() {
		return d.Score(), d.Bit()
	}
	defer d.mu.Unlock()

	if !d.trained {
		return 0, false
	}

	n := cfg.DiffN + cfg.SmoothN + cfg.LagN
	window, err := sample.Pull(src, d.Handle, now, d.UpdateEvery, n, n)
	if err != nil {
		return d.Score(), d.Bit()
	}

	pipeline := feature.Pipeline{DiffN: cfg.DiffN, SmoothN: cfg.SmoothN, LagN: cfg.LagN}
	matrix, err := pipeline.Transform(window.Values)
	if err != nil {
		return d.Score(), d.Bit()
	}

	score, err := d.model.Score(matrix[len(matrix)-1])
	if err != nil {
		return d.Score(), d.Bit()
	}

	bit := score >= cfg.AnomalyScoreThreshold
	d.setCached(score, bit)

	d.contribution.Insert(bit)
	if bit {
		d.contribution.IncrementBitCounter()
	}

	return score, bit
}

// ResetContribution establishes a new contribution baseline: bit_counter
// is set to the contribution ring's current set-bit count. Called on a
// (Below, Below) roundtrip edge of the host's RollingBitWindow.
func (d *Dimension) ResetContribution() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contribution.ResetCountTo(d.contribution.SetBits())
}

// AnomalyRate returns bit_counter / windowLength, then rebaselines
// bit_counter to the contribution ring's current set-bit count.
func (d *Dimension) AnomalyRate(windowLength int) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if windowLength <= 0 {
		return 0
	}
	rate := float64(d.contribution.BitCounter()) / float64(windowLength)
	d.contribution.ResetCountTo(d.contribution.SetBits())
	return rate
}

// deterministicSeed derives a reproducible k-means++ RNG seed from
// (host-uuid, dimension-id, last_trained_at) so training runs replay
// identically in tests.
func deterministicSeed(hostUUID uuid.UUID, dimensionID string, lastTrainedAt int64) int64 {
	h := fnv.New64a()
	h.Write(hostUUID[:])
	h.Write([]byte(dimensionID))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(lastTrainedAt >> (8 * i))
	}
	h.Write(buf[:])
	return int64(h.Sum64())
}
