// Package sample pulls a fixed count of aligned, carry-forward-packed
// real values out of the storage query interface.
package sample

import (
	"math"

	mlerrors "github.com/hostml/adengine/errors"
	"github.com/hostml/adengine/storage"
)

// Window is a packed, time-ordered vector of real values plus the number
// of genuinely observed (non carry-forward, non-missing) samples it
// contains.
type Window struct {
	Values    []float64
	Collected int
}

// FillRatio is Collected / len(Values), or 0 for an empty window.
func (w *Window) FillRatio() float64 {
	if len(w.Values) == 0 {
		return 0
	}
	return float64(w.Collected) / float64(len(w.Values))
}

// Pull computes the aligned [after, before] range, iterates the query in
// increasing time order, carries forward missing samples, and compacts
// away any leading sentinel NaNs.
func Pull(src storage.Source, handle storage.Handle, now, updateEvery int64, n, minN int) (*Window, error) {
	if n <= 0 || updateEvery <= 0 {
		return nil, mlerrors.New(mlerrors.MissingData, "sample.Pull", "invalid window parameters")
	}

	before := floorTo(now-1, updateEvery)
	after := floorTo(before-int64(n)*updateEvery, updateEvery)

	q := src.Open(handle)
	defer q.Finalize()

	if latest := q.LatestTime(); latest < before {
		before = floorTo(latest, updateEvery)
	}
	if oldest := q.OldestTime(); oldest > after {
		after = floorTo(oldest, updateEvery)
	}

	if after >= before {
		// The window still reports collected = 0; NoData lets a caller
		// distinguish "nothing to pull" from "pulled but too sparse"
		// (MissingData, below).
		return &Window{Collected: 0}, mlerrors.New(mlerrors.NoData, "sample.Pull", "empty time range")
	}

	if err := q.Init(after, before); err != nil {
		return nil, mlerrors.Wrap(mlerrors.StorageError, "sample.Pull", err)
	}

	values := make([]float64, 0, n)
	collected := 0
	haveCarry := false
	var carry float64

	for !q.IsFinished() && len(values) < n {
		_, s, err := q.NextMetric()
		if err != nil {
			return nil, mlerrors.Wrap(mlerrors.StorageError, "sample.Pull", err)
		}
		present, v := s.Decode()
		switch {
		case present:
			values = append(values, v)
			collected++
			haveCarry, carry = true, v
		case haveCarry:
			values = append(values, carry)
		default:
			values = append(values, math.NaN())
		}
	}

	// Trim leading sentinel NaNs and compact so the first TotalValues real
	// values occupy indices [0, TotalValues).
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	values = values[start:]

	if collected < minN {
		return nil, mlerrors.New(mlerrors.MissingData, "sample.Pull", "insufficient real samples")
	}

	return &Window{Values: values, Collected: collected}, nil
}

func floorTo(t, step int64) int64 {
	if step <= 0 {
		return t
	}
	return (t / step) * step
}
