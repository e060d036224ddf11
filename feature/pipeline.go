// Package feature implements the preprocessing pipeline: a three-stage,
// fixed-order transform (differencing, trailing moving-average smoothing,
// lag embedding) that turns a sample window into the feature matrix the
// k-means model trains and scores on.
package feature

import (
	mlerrors "github.com/hostml/adengine/errors"
)

// Pipeline holds the three stage widths. Zero values are valid (DiffN=0,
// LagN=0 degrade their stage to a no-op); SmoothN must be ≥ 1.
type Pipeline struct {
	DiffN   int
	SmoothN int
	LagN    int
}

// Dimensionality is the width of one output row, LagN+1.
func (p Pipeline) Dimensionality() int {
	return p.LagN + 1
}

// MinInputLen is the smallest window length that can survive all three
// stages and yield at least one output row.
func (p Pipeline) MinInputLen() int {
	return p.DiffN + p.SmoothN + p.LagN
}

// Transform runs differencing, smoothing, and lag embedding in order on
// values, returning the resulting feature matrix. Each stage shrinks the
// effective length; if any stage's output would be empty, Transform fails
// with MissingData rather than returning a degenerate matrix.
func (p Pipeline) Transform(values []float64) ([][]float64, error) {
	if p.SmoothN < 1 {
		return nil, mlerrors.New(mlerrors.MissingData, "feature.Transform", "SmoothN must be >= 1")
	}

	diffed := p.difference(values)
	if len(diffed) == 0 {
		return nil, mlerrors.New(mlerrors.MissingData, "feature.Transform", "effective length non-positive after differencing")
	}

	smoothed := p.smooth(diffed)
	if len(smoothed) == 0 {
		return nil, mlerrors.New(mlerrors.MissingData, "feature.Transform", "effective length non-positive after smoothing")
	}

	matrix := p.embed(smoothed)
	if len(matrix) == 0 {
		return nil, mlerrors.New(mlerrors.MissingData, "feature.Transform", "effective length non-positive after lag embedding")
	}

	return matrix, nil
}

// difference replaces x[i] with x[i]-x[i-DiffN] for i in [DiffN, M), and
// drops the now-invalid leading DiffN positions. DiffN=0 is a copy.
func (p Pipeline) difference(x []float64) []float64 {
	m := len(x)
	if m <= p.DiffN {
		return nil
	}
	if p.DiffN == 0 {
		out := make([]float64, m)
		copy(out, x)
		return out
	}
	out := make([]float64, m-p.DiffN)
	for i := p.DiffN; i < m; i++ {
		out[i-p.DiffN] = x[i] - x[i-p.DiffN]
	}
	return out
}

// smooth computes the centered trailing moving average of width SmoothN
// over y using an incremental accumulator: the window sum is updated by
// subtracting the sample that leaves and adding the one that enters, so
// the whole pass costs O(len(y)) regardless of SmoothN.
func (p Pipeline) smooth(y []float64) []float64 {
	n := len(y)
	if n < p.SmoothN {
		return nil
	}
	outLen := n - (p.SmoothN - 1)
	out := make([]float64, outLen)

	sum := 0.0
	for i := 0; i < p.SmoothN; i++ {
		sum += y[i]
	}
	out[0] = sum / float64(p.SmoothN)

	for i := p.SmoothN; i < n; i++ {
		sum += y[i] - y[i-p.SmoothN]
		out[i-p.SmoothN+1] = sum / float64(p.SmoothN)
	}
	return out
}

// embed expands each scalar position i >= LagN into a row
// (z[i], z[i-1], ..., z[i-LagN]), dropping the positions too close to the
// start of z to have a full lag window.
func (p Pipeline) embed(z []float64) [][]float64 {
	n := len(z)
	rows := n - p.LagN
	if rows <= 0 {
		return nil
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		pos := r + p.LagN
		row := make([]float64, p.LagN+1)
		for k := 0; k <= p.LagN; k++ {
			row[k] = z[pos-k]
		}
		out[r] = row
	}
	return out
}
