package ta

import "math"

// AlignHow selects the timestamp set used when aligning two series.
type AlignHow string

const (
	// AlignInner keeps only timestamps present in both series.
	AlignInner AlignHow = "inner"
	// AlignOuter keeps the sorted union of both timestamp sets.
	AlignOuter AlignHow = "outer"
)

// FillKind selects how a side with no value at an output timestamp is
// filled.
type FillKind string

const (
	// FillNone leaves gaps as NaN with mask false.
	FillNone FillKind = "none"
	// FillForward carries the last defined value forward.
	FillForward FillKind = "ffill"
	// FillValue substitutes a fixed value.
	FillValue FillKind = "value"
)

// FillPolicy describes gap filling during alignment.
type FillPolicy struct {
	Kind  FillKind
	Value float64
}

// Align aligns two series onto a common timestamp axis. Scalar series
// adopt the other side's axis and metadata. Non-scalar series must
// agree on symbol and timeframe.
func Align(a, b Series, how AlignHow, fill FillPolicy) (Series, Series, error) {
	if a.scalar && b.scalar {
		return a, b, nil
	}
	if a.scalar {
		return broadcastScalar(a, b), b, nil
	}
	if b.scalar {
		return a, broadcastScalar(b, a), nil
	}
	if err := sameMetadata(a, b); err != nil {
		return Series{}, Series{}, err
	}

	axis := mergeAxes(a.timestamps, b.timestamps, how)
	left := projectOnto(a, axis, fill)
	right := projectOnto(b, axis, fill)
	return left, right, nil
}

// broadcastScalar expands a one-point scalar series over the template
// series's axis, inheriting its metadata.
func broadcastScalar(scalar, template Series) Series {
	n := template.Len()
	vals := make([]float64, n)
	mask := make([]bool, n)
	v := scalar.values[0]
	ok := scalar.mask[0]
	for i := 0; i < n; i++ {
		vals[i] = v
		mask[i] = ok
	}
	return Series{
		timestamps: template.timestamps,
		values:     vals,
		symbol:     template.symbol,
		timeframe:  template.timeframe,
		mask:       mask,
	}
}

// mergeAxes computes the sorted union or intersection of two sorted
// timestamp slices.
func mergeAxes(a, b []Timestamp, how AlignHow) []Timestamp {
	out := make([]Timestamp, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			if how == AlignOuter {
				out = append(out, a[i])
			}
			i++
		default:
			if how == AlignOuter {
				out = append(out, b[j])
			}
			j++
		}
	}
	if how == AlignOuter {
		out = append(out, a[i:]...)
		out = append(out, b[j:]...)
	}
	return out
}

// projectOnto maps a series onto a new axis, filling gaps per policy.
func projectOnto(s Series, axis []Timestamp, fill FillPolicy) Series {
	vals := make([]float64, len(axis))
	mask := make([]bool, len(axis))
	src := 0
	lastVal := math.NaN()
	lastOK := false
	for i, t := range axis {
		for src < len(s.timestamps) && s.timestamps[src] < t {
			if s.mask[src] {
				lastVal, lastOK = s.values[src], true
			}
			src++
		}
		if src < len(s.timestamps) && s.timestamps[src] == t {
			vals[i] = s.values[src]
			mask[i] = s.mask[src]
			if s.mask[src] {
				lastVal, lastOK = s.values[src], true
			}
			src++
			continue
		}
		switch fill.Kind {
		case FillForward:
			if lastOK {
				vals[i] = lastVal
				mask[i] = true
			} else {
				vals[i] = math.NaN()
			}
		case FillValue:
			vals[i] = fill.Value
			mask[i] = !math.IsNaN(fill.Value)
		default:
			vals[i] = math.NaN()
		}
	}
	return Series{
		timestamps: axis,
		values:     vals,
		symbol:     s.symbol,
		timeframe:  s.timeframe,
		mask:       mask,
	}
}
