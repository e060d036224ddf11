// Package storage defines the narrow query interface the engine pulls
// samples through. The actual time-series storage engine lives in the
// embedding agent — this package only describes the seam.
package storage

// Sample is one packed observation: a 32-bit value that may or may not
// represent a present real number.
type Sample uint32

// Missing is the sentinel packed value meaning "no observation at this
// slot". A real concrete storage engine packs flags into the high bits of
// the 32-bit word; this module never interprets that encoding beyond
// "missing or present", so a single sentinel constant is enough for every
// caller in this module and its tests.
const Missing Sample = 0xFFFFFFFF

// Decode unpacks a Sample into (present, value). A real storage engine's
// packed encoding is opaque to this module beyond this contract.
func (s Sample) Decode() (present bool, value float64) {
	if s == Missing {
		return false, 0
	}
	return true, float64(int32(s)) / 1000.0
}

// Pack encodes a floating point value into a Sample, the inverse of
// Decode, for tests and fake query implementations that need to produce
// packed samples.
func Pack(value float64) Sample {
	return Sample(int32(value * 1000.0))
}

// Query iterates samples in a half-open time range, in strictly increasing
// time order. Implementations are provided by the host agent's storage
// engine; this module only consumes the interface.
type Query interface {
	// LatestTime returns the time of the newest sample the series has,
	// in seconds since epoch.
	LatestTime() int64
	// OldestTime returns the time of the oldest sample the series has.
	OldestTime() int64
	// Init opens an iteration over (after, before]: after is exclusive,
	// before is inclusive.
	Init(after, before int64) error
	// IsFinished reports whether the iteration has been exhausted.
	IsFinished() bool
	// NextMetric advances the iteration and returns the next (time,
	// sample) pair. Must not be called once IsFinished is true.
	NextMetric() (t int64, s Sample, err error)
	// Finalize releases any resources the query holds.
	Finalize()
}

// Source opens a Query for a time-series handle. A real implementation is
// the host agent's time-series storage engine.
type Source interface {
	Open(handle Handle) Query
}

// Handle is an opaque reference to a monitored time series, owned and
// interpreted entirely by the host agent's storage engine.
type Handle interface{}
