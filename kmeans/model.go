// Package kmeans implements the anomaly model: k-means++ seeding, Lloyd's
// algorithm with empty-cluster reseeding, and score-by-distance against a
// fixed number of centroids.
package kmeans

import (
	"math"
	"math/rand"

	mlerrors "github.com/hostml/adengine/errors"
	"gonum.org/v1/gonum/floats"
)

// K is the number of centroids this engine always fits.
const K = 2

// maxIterations caps Lloyd's algorithm when assignments never stabilize.
const maxIterations = 100

// Model is a trained (or not-yet-trained) set of K centroids plus the
// max_dist normalizer computed at training time. The zero value is a
// valid, untrained model.
type Model struct {
	centroids [][]float64
	maxDist   float64
	trained   bool
}

// New returns an untrained model.
func New() *Model {
	return &Model{}
}

// Trained reports whether the model has centroids to score against.
func (m *Model) Trained() bool {
	return m.trained
}

// Train fits K centroids to X using k-means++ seeding and Lloyd's
// algorithm. seed is supplied by the caller (deterministically derived
// from host UUID, dimension ID, and last_trained_at per the scheduling
// layer) so that training runs are reproducible in tests. On any
// numerical failure the model is left exactly as it was — Trained()
// still reflects whatever state preceded this call.
func (m *Model) Train(x [][]float64, seed int64) error {
	if len(x) < K {
		return mlerrors.New(mlerrors.MissingData, "kmeans.Train", "fewer rows than centroids")
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := seedPlusPlus(x, K, rng)

	assignments, err := lloyd(x, centroids)
	if err != nil {
		return mlerrors.Wrap(mlerrors.MissingData, "kmeans.Train", err)
	}

	maxDist := 0.0
	for i, row := range x {
		d := floats.Distance(row, centroids[assignments[i]], 2)
		if !isFinite(d) {
			return mlerrors.New(mlerrors.MissingData, "kmeans.Train", "non-finite distance computing max_dist")
		}
		if d > maxDist {
			maxDist = d
		}
	}

	m.centroids = centroids
	m.maxDist = maxDist
	m.trained = true
	return nil
}

// Score returns the anomaly probability for v: the Euclidean distance to
// the nearest centroid, normalized by max_dist and clamped to [0,1].
// Calling Score on an untrained model is a NoModel failure and leaves the
// model unchanged.
func (m *Model) Score(v []float64) (float64, error) {
	if !m.trained {
		return 0, mlerrors.New(mlerrors.NoModel, "kmeans.Score", "model has no centroids")
	}

	dMin := math.Inf(1)
	for _, c := range m.centroids {
		d := floats.Distance(v, c, 2)
		if d < dMin {
			dMin = d
		}
	}

	if m.maxDist <= 0 {
		return 0, nil
	}
	score := dMin / m.maxDist
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return score, nil
}

// seedPlusPlus picks k initial centroids from x: the first uniformly at
// random, each subsequent one with probability proportional to its
// squared distance to the nearest already-chosen centroid.
func seedPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneRow(x[rng.Intn(n)]))

	for len(centroids) < k {
		distSq := make([]float64, n)
		total := 0.0
		for i, row := range x {
			dMin := math.Inf(1)
			for _, c := range centroids {
				d := floats.Distance(row, c, 2)
				if d < dMin {
					dMin = d
				}
			}
			distSq[i] = dMin * dMin
			total += distSq[i]
		}

		if total == 0 {
			centroids = append(centroids, cloneRow(x[rng.Intn(n)]))
			continue
		}

		target := rng.Float64() * total
		cum := 0.0
		chosen := n - 1
		for i, ds := range distSq {
			cum += ds
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, cloneRow(x[chosen]))
	}
	return centroids
}

// lloyd runs the assign/update loop in place on centroids until
// assignments stabilize or maxIterations is reached, reseeding any
// cluster that loses all its points from the point currently farthest
// from its assigned centroid.
func lloyd(x [][]float64, centroids [][]float64) ([]int, error) {
	n := len(x)
	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false

		for i, row := range x {
			best, bestDist := -1, math.Inf(1)
			for c, centroid := range centroids {
				d := floats.Distance(row, centroid, 2)
				if !isFinite(d) {
					return nil, mlerrors.New(mlerrors.MissingData, "kmeans.lloyd", "non-finite distance during assignment")
				}
				if d < bestDist {
					bestDist, best = d, c
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		counts := make([]int, len(centroids))
		sums := make([][]float64, len(centroids))
		for c := range centroids {
			sums[c] = make([]float64, len(centroids[c]))
		}
		for i, row := range x {
			c := assignments[i]
			counts[c]++
			floats.Add(sums[c], row)
		}

		for c := range centroids {
			if counts[c] == 0 {
				farI, farD := 0, -1.0
				for i, row := range x {
					d := floats.Distance(row, centroids[assignments[i]], 2)
					if d > farD {
						farD, farI = d, i
					}
				}
				centroids[c] = cloneRow(x[farI])
				assignments[farI] = c
				changed = true
				continue
			}
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}

		if !changed {
			break
		}
	}

	return assignments, nil
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
