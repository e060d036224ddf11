package storage

import "sort"

// TimedSample pairs a sample with its time, for constructing fixed
// in-memory series.
type TimedSample struct {
	Time  int64
	Value Sample
}

// SliceQuery is a Query backed by an in-memory, time-sorted slice. It is
// the minimal concrete implementation of the storage interface this
// module ships — production storage comes from the host agent — and it
// doubles as the fixture every other package's tests build fake series
// with.
type SliceQuery struct {
	samples []TimedSample
	cursor  int
	after   int64
	before  int64
}

// NewSliceQuery builds a SliceQuery over samples, which need not be
// presorted.
func NewSliceQuery(samples []TimedSample) *SliceQuery {
	cp := make([]TimedSample, len(samples))
	copy(cp, samples)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Time < cp[j].Time })
	return &SliceQuery{samples: cp}
}

func (q *SliceQuery) LatestTime() int64 {
	if len(q.samples) == 0 {
		return 0
	}
	return q.samples[len(q.samples)-1].Time
}

func (q *SliceQuery) OldestTime() int64 {
	if len(q.samples) == 0 {
		return 0
	}
	return q.samples[0].Time
}

func (q *SliceQuery) Init(after, before int64) error {
	q.after, q.before = after, before
	q.cursor = sort.Search(len(q.samples), func(i int) bool {
		return q.samples[i].Time > after
	})
	return nil
}

func (q *SliceQuery) IsFinished() bool {
	return q.cursor >= len(q.samples) || q.samples[q.cursor].Time > q.before
}

func (q *SliceQuery) NextMetric() (int64, Sample, error) {
	s := q.samples[q.cursor]
	q.cursor++
	return s.Time, s.Value, nil
}

func (q *SliceQuery) Finalize() {}

// SliceSource opens a SliceQuery over a fixed series regardless of the
// handle passed to Open, for tests that only ever monitor one series.
type SliceSource struct {
	Samples []TimedSample
}

func (s SliceSource) Open(Handle) Query {
	return NewSliceQuery(s.Samples)
}
