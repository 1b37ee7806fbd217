// Package ta provides the core data model for technical-analysis
// computation: immutable time series, datasets partitioned by
// (symbol, timeframe, source), series contexts, and the typed errors
// shared by the parser, planner, and engine.
//
// File organization:
//   - series.go: Series type, constructors, invariants, slicing
//   - series_ops.go: element-wise arithmetic, comparison, logic
//   - series_align.go: pair alignment and fill policies
//   - dataset.go: Dataset and partition keys
//   - context.go: SeriesContext with lazily derived fields
//   - schema.go: canonical source/field schema
//   - errors.go: error kinds surfaced to callers
package ta

import (
	"fmt"
	"math"
	"sort"
)

// Timestamp is a Unix timestamp in milliseconds.
type Timestamp = int64

// Series is an immutable time series: a sorted timestamp axis, one
// float64 value per timestamp, identity metadata, and an availability
// mask flagging which indices carry a defined result.
//
// The mask and the values are kept in lockstep by every constructor:
// a NaN value is always mask-false, and a mask-false index always
// holds NaN. Consumers may therefore test either.
type Series struct {
	timestamps []Timestamp
	values     []float64
	symbol     string
	timeframe  string
	mask       []bool
	scalar     bool
}

// NewSeries creates a series with all elements available (except NaN
// inputs, which are masked false).
func NewSeries(timestamps []Timestamp, values []float64, symbol, timeframe string) (Series, error) {
	return NewMaskedSeries(timestamps, values, nil, symbol, timeframe)
}

// NewMaskedSeries creates a series with an explicit availability mask.
// A nil mask means "everything defined". The mask is normalized so
// that NaN values are mask-false and mask-false values are NaN.
func NewMaskedSeries(timestamps []Timestamp, values []float64, mask []bool, symbol, timeframe string) (Series, error) {
	if len(timestamps) != len(values) {
		return Series{}, fmt.Errorf("timestamps and values must have the same length: %d vs %d", len(timestamps), len(values))
	}
	if mask != nil && len(mask) != len(values) {
		return Series{}, fmt.Errorf("availability mask length %d does not match series length %d", len(mask), len(values))
	}
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] <= timestamps[i-1] {
			return Series{}, fmt.Errorf("timestamps must be strictly increasing: index %d", i)
		}
	}

	ts := make([]Timestamp, len(timestamps))
	copy(ts, timestamps)
	vals := make([]float64, len(values))
	copy(vals, values)
	m := make([]bool, len(values))
	for i := range vals {
		ok := mask == nil || mask[i]
		if math.IsNaN(vals[i]) {
			ok = false
		}
		if !ok {
			vals[i] = math.NaN()
		}
		m[i] = ok
	}

	return Series{
		timestamps: ts,
		values:     vals,
		symbol:     symbol,
		timeframe:  timeframe,
		mask:       m,
	}, nil
}

// MustSeries is NewSeries that panics on invalid input. Test helper.
func MustSeries(timestamps []Timestamp, values []float64, symbol, timeframe string) Series {
	s, err := NewSeries(timestamps, values, symbol, timeframe)
	if err != nil {
		panic(err)
	}
	return s
}

// NewScalarSeries lifts a scalar into a synthetic one-point series.
// Alignment against any real series adopts that series's timestamps
// and metadata.
func NewScalarSeries(value float64) Series {
	s := Series{
		timestamps: []Timestamp{0},
		values:     []float64{value},
		symbol:     "SCALAR",
		timeframe:  "",
		mask:       []bool{!math.IsNaN(value)},
		scalar:     true,
	}
	if math.IsNaN(value) {
		s.values[0] = math.NaN()
	}
	return s
}

// Len returns the number of data points.
func (s Series) Len() int { return len(s.timestamps) }

// IsEmpty reports whether the series has no data points.
func (s Series) IsEmpty() bool { return len(s.timestamps) == 0 }

// IsScalar reports whether this is a broadcastable scalar series.
func (s Series) IsScalar() bool { return s.scalar }

// Symbol returns the trading symbol.
func (s Series) Symbol() string { return s.symbol }

// Timeframe returns the timeframe string (e.g. "1h").
func (s Series) Timeframe() string { return s.timeframe }

// Timestamps returns the timestamp axis. The returned slice is shared;
// callers must not modify it.
func (s Series) Timestamps() []Timestamp { return s.timestamps }

// Values returns the value array. The returned slice is shared;
// callers must not modify it.
func (s Series) Values() []float64 { return s.values }

// Mask returns the availability mask. The returned slice is shared;
// callers must not modify it.
func (s Series) Mask() []bool { return s.mask }

// At returns the (timestamp, value) pair at index i.
func (s Series) At(i int) (Timestamp, float64) { return s.timestamps[i], s.values[i] }

// Defined reports whether index i carries a defined value.
func (s Series) Defined(i int) bool { return s.mask[i] }

// Value returns the value at index i.
func (s Series) Value(i int) float64 { return s.values[i] }

// ScalarValue returns the single value of a scalar series.
func (s Series) ScalarValue() float64 { return s.values[0] }

// SliceByTime returns the sub-series with start <= timestamp <= end,
// located by binary search.
func (s Series) SliceByTime(start, end Timestamp) (Series, error) {
	if start > end {
		return Series{}, fmt.Errorf("start time %d must be <= end time %d", start, end)
	}
	lo := sort.Search(len(s.timestamps), func(i int) bool { return s.timestamps[i] >= start })
	hi := sort.Search(len(s.timestamps), func(i int) bool { return s.timestamps[i] > end })
	return s.SliceIndex(lo, hi), nil
}

// SliceIndex returns the sub-series for the half-open index range
// [lo, hi).
func (s Series) SliceIndex(lo, hi int) Series {
	return Series{
		timestamps: s.timestamps[lo:hi],
		values:     s.values[lo:hi],
		symbol:     s.symbol,
		timeframe:  s.timeframe,
		mask:       s.mask[lo:hi],
	}
}

// IndexOf returns the index of the exact timestamp, or -1.
func (s Series) IndexOf(t Timestamp) int {
	i := sort.Search(len(s.timestamps), func(i int) bool { return s.timestamps[i] >= t })
	if i < len(s.timestamps) && s.timestamps[i] == t {
		return i
	}
	return -1
}

// WithValues returns a series sharing this series's axis and metadata
// but carrying new values and mask. Used by kernels and the engine to
// emit outputs aligned to an input axis.
func (s Series) WithValues(values []float64, mask []bool) (Series, error) {
	return NewMaskedSeries(s.timestamps, values, mask, s.symbol, s.timeframe)
}

// WithMetadata returns the same data under different identity
// metadata. Used when projecting cross-timeframe references onto the
// evaluation partition.
func (s Series) WithMetadata(symbol, timeframe string) Series {
	s.symbol = symbol
	s.timeframe = timeframe
	return s
}

// sameMetadata reports whether two non-scalar series agree on symbol
// and timeframe, returning the mismatching axis otherwise.
func sameMetadata(a, b Series) error {
	if a.scalar || b.scalar {
		return nil
	}
	if a.symbol != b.symbol {
		return &MetadataMismatchError{Axis: "symbol", Left: a.symbol, Right: b.symbol}
	}
	if a.timeframe != b.timeframe {
		return &MetadataMismatchError{Axis: "timeframe", Left: a.timeframe, Right: b.timeframe}
	}
	return nil
}

// String returns a short human-readable description.
func (s Series) String() string {
	if s.scalar {
		return fmt.Sprintf("Scalar(%g)", s.values[0])
	}
	return fmt.Sprintf("Series(%s %s, %d points)", s.symbol, s.timeframe, len(s.timestamps))
}
