package kernel

import (
	"math"
	"sort"
)

// recomputeInterval bounds the accumulated floating-point error of
// the incremental sum/sum-of-squares: after this many evictions the
// window totals are recomputed from scratch. Both execution modes run
// the same schedule, so results stay bit-identical.
const recomputeInterval = 4096

type statMode int

const (
	statSum statMode = iota
	statMean
	statStd
)

// rollingStatState carries the window plus incremental totals.
type rollingStatState struct {
	window    []float64
	sum       float64
	sumSq     float64
	evictions int
}

func (s *rollingStatState) Clone() State {
	cp := *s
	cp.window = append([]float64(nil), s.window...)
	return &cp
}

// RollingStat computes rolling sum, mean, or std (population
// denominator) over a fixed window using incremental totals.
type RollingStat struct {
	mode   statMode
	period int
}

// NewRollingStat creates a rolling sum/mean/std kernel.
func NewRollingStat(mode statMode, period int) *RollingStat {
	return &RollingStat{mode: mode, period: period}
}

func (k *RollingStat) MinPeriods() int { return k.period }

func (k *RollingStat) Outputs() []string { return []string{"result"} }

func (k *RollingStat) Initialize(history []Sample) State {
	st := &rollingStatState{}
	keep := history
	if len(keep) > k.period-1 && k.period > 1 {
		keep = keep[len(keep)-(k.period-1):]
	} else if k.period <= 1 {
		keep = nil
	}
	for _, x := range keep {
		st.window = append(st.window, x.Value)
		st.sum += x.Value
		st.sumSq += x.Value * x.Value
	}
	return st
}

func (k *RollingStat) Step(st State, x Sample) (State, []float64) {
	s := st.(*rollingStatState).Clone().(*rollingStatState)
	s.window = append(s.window, x.Value)
	s.sum += x.Value
	s.sumSq += x.Value * x.Value
	if len(s.window) > k.period {
		old := s.window[0]
		s.window = s.window[1:]
		s.sum -= old
		s.sumSq -= old * old
		s.evictions++
		if s.evictions >= recomputeInterval {
			s.sum, s.sumSq = 0, 0
			for _, v := range s.window {
				s.sum += v
				s.sumSq += v * v
			}
			s.evictions = 0
		}
	}
	if len(s.window) < k.period {
		return s, []float64{math.NaN()}
	}
	n := float64(k.period)
	switch k.mode {
	case statSum:
		return s, []float64{s.sum}
	case statMean:
		return s, []float64{s.sum / n}
	default:
		mean := s.sum / n
		variance := s.sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		return s, []float64{math.Sqrt(variance)}
	}
}

// monotonicEntry pairs a running index with its value so evictions
// can be matched against the deque front.
type monotonicEntry struct {
	idx int
	val float64
}

// monotonicState is a window deque plus a monotonic deque, giving
// amortised O(1) rolling max/min updates.
type monotonicState struct {
	window  []monotonicEntry
	mono    []monotonicEntry
	nextIdx int
}

func (s *monotonicState) Clone() State {
	cp := &monotonicState{nextIdx: s.nextIdx}
	cp.window = append([]monotonicEntry(nil), s.window...)
	cp.mono = append([]monotonicEntry(nil), s.mono...)
	return cp
}

// RollingExtremum computes rolling max/min, or the distance back to
// the extremum (argmax/argmin).
type RollingExtremum struct {
	isMax  bool
	arg    bool
	period int
}

// NewRollingExtremum creates a rolling max/min/argmax/argmin kernel.
func NewRollingExtremum(isMax, arg bool, period int) *RollingExtremum {
	return &RollingExtremum{isMax: isMax, arg: arg, period: period}
}

func (k *RollingExtremum) MinPeriods() int { return k.period }

func (k *RollingExtremum) Outputs() []string { return []string{"result"} }

func (k *RollingExtremum) Initialize(history []Sample) State {
	st := &monotonicState{}
	keep := history
	if len(keep) > k.period-1 && k.period > 1 {
		keep = keep[len(keep)-(k.period-1):]
	} else if k.period <= 1 {
		keep = nil
	}
	for _, x := range keep {
		pushMonotonic(st, x.Value, k.isMax)
	}
	return st
}

func (k *RollingExtremum) Step(st State, x Sample) (State, []float64) {
	s := st.(*monotonicState).Clone().(*monotonicState)
	pushMonotonic(s, x.Value, k.isMax)
	if len(s.window) > k.period {
		dropped := s.window[0]
		s.window = s.window[1:]
		if len(s.mono) > 0 && s.mono[0].idx == dropped.idx {
			s.mono = s.mono[1:]
		}
	}
	if len(s.window) < k.period {
		return s, []float64{math.NaN()}
	}
	if k.arg {
		current := s.window[len(s.window)-1].idx
		return s, []float64{float64(current - s.mono[0].idx)}
	}
	return s, []float64{s.mono[0].val}
}

func pushMonotonic(s *monotonicState, v float64, isMax bool) {
	entry := monotonicEntry{idx: s.nextIdx, val: v}
	s.window = append(s.window, entry)
	for len(s.mono) > 0 {
		tail := s.mono[len(s.mono)-1].val
		if (isMax && tail <= v) || (!isMax && tail >= v) {
			s.mono = s.mono[:len(s.mono)-1]
			continue
		}
		break
	}
	s.mono = append(s.mono, entry)
	s.nextIdx++
}

// rollingMedianState keeps the raw window; the median re-sorts per
// step. Not a hot path.
type rollingMedianState struct {
	window []float64
}

func (s *rollingMedianState) Clone() State {
	return &rollingMedianState{window: append([]float64(nil), s.window...)}
}

// RollingMedian computes the rolling upper median of a window.
type RollingMedian struct {
	period int
}

// NewRollingMedian creates a rolling median kernel.
func NewRollingMedian(period int) *RollingMedian { return &RollingMedian{period: period} }

func (k *RollingMedian) MinPeriods() int { return k.period }

func (k *RollingMedian) Outputs() []string { return []string{"result"} }

func (k *RollingMedian) Initialize(history []Sample) State {
	st := &rollingMedianState{}
	keep := history
	if len(keep) > k.period-1 && k.period > 1 {
		keep = keep[len(keep)-(k.period-1):]
	} else if k.period <= 1 {
		keep = nil
	}
	for _, x := range keep {
		st.window = append(st.window, x.Value)
	}
	return st
}

func (k *RollingMedian) Step(st State, x Sample) (State, []float64) {
	s := st.(*rollingMedianState).Clone().(*rollingMedianState)
	s.window = append(s.window, x.Value)
	if len(s.window) > k.period {
		s.window = s.window[1:]
	}
	if len(s.window) < k.period {
		return s, []float64{math.NaN()}
	}
	sorted := append([]float64(nil), s.window...)
	sort.Float64s(sorted)
	return s, []float64{sorted[len(sorted)/2]}
}
