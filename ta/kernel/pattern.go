package kernel

import "math"

// swingState buffers the last left+right+1 bars of highs and lows.
// A candidate pivot at p = i-right is confirmed at i once the right
// window is complete.
type swingState struct {
	highs []float64
	lows  []float64
	bars  int
}

func (s *swingState) Clone() State {
	cp := &swingState{bars: s.bars}
	cp.highs = append([]float64(nil), s.highs...)
	cp.lows = append([]float64(nil), s.lows...)
	return cp
}

// SwingPoints detects fractal pivots: a swing high at p is a high
// strictly exceeding the left preceding and right following highs,
// reported at the confirmation index p+right. In "flags" mode the
// outputs are 1/0 events; in "levels" mode they carry the pivot
// price at the confirmation index and NaN elsewhere.
type SwingPoints struct {
	left       int
	right      int
	levels     bool
	allowEqual bool
}

// NewSwingPoints creates a swing-point kernel.
func NewSwingPoints(left, right int, returnMode string, allowEqual bool) *SwingPoints {
	return &SwingPoints{
		left:       left,
		right:      right,
		levels:     returnMode == "levels",
		allowEqual: allowEqual,
	}
}

func (k *SwingPoints) MinPeriods() int { return k.left + k.right + 1 }

func (k *SwingPoints) Outputs() []string { return []string{"swing_high", "swing_low"} }

func (k *SwingPoints) Initialize(history []Sample) State {
	st := &swingState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*swingState)
	}
	return st
}

func (k *SwingPoints) Step(st State, x Sample) (State, []float64) {
	s := st.(*swingState).Clone().(*swingState)
	s.bars++
	window := k.left + k.right + 1
	s.highs = append(s.highs, x.High)
	s.lows = append(s.lows, x.Low)
	if len(s.highs) > window {
		s.highs = s.highs[1:]
		s.lows = s.lows[1:]
	}
	if len(s.highs) < window {
		return s, []float64{math.NaN(), math.NaN()}
	}

	pivot := k.left // candidate position inside the window
	isHigh := k.isPivot(s.highs, pivot, true)
	isLow := k.isPivot(s.lows, pivot, false)

	if k.levels {
		hi, lo := math.NaN(), math.NaN()
		if isHigh {
			hi = s.highs[pivot]
		}
		if isLow {
			lo = s.lows[pivot]
		}
		return s, []float64{hi, lo}
	}
	return s, []float64{boolVal(isHigh), boolVal(isLow)}
}

func (k *SwingPoints) isPivot(vals []float64, pivot int, high bool) bool {
	v := vals[pivot]
	for i, other := range vals {
		if i == pivot {
			continue
		}
		if high {
			if other > v || (!k.allowEqual && other == v) {
				return false
			}
		} else {
			if other < v || (!k.allowEqual && other == v) {
				return false
			}
		}
	}
	return true
}

// fibState composes swing detection with the latest confirmed
// anchors.
type fibState struct {
	swings  State
	high    float64
	low     float64
	highIdx int
	lowIdx  int
	bar     int
	hasHigh bool
	hasLow  bool
}

func (s *fibState) Clone() State {
	cp := *s
	cp.swings = s.swings.Clone()
	return &cp
}

// FibRetracement projects the classic retracement levels between the
// most recent confirmed swing high/low pair. The "down" family
// retraces a completed up-move (high after low); the "up" family the
// mirror case.
type FibRetracement struct {
	left   int
	right  int
	swings *SwingPoints
}

// fibLevels are the projected ratios.
var fibLevels = []float64{0.382, 0.5, 0.618}

// NewFibRetracement creates a Fibonacci retracement kernel.
func NewFibRetracement(left, right int) *FibRetracement {
	return &FibRetracement{
		left:   left,
		right:  right,
		swings: NewSwingPoints(left, right, "levels", false),
	}
}

func (k *FibRetracement) MinPeriods() int { return k.left + k.right + 1 }

func (k *FibRetracement) Outputs() []string {
	return []string{
		"anchor_high", "anchor_low",
		"down_382", "down_500", "down_618",
		"up_382", "up_500", "up_618",
	}
}

func (k *FibRetracement) Initialize(history []Sample) State {
	st := &fibState{swings: k.swings.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*fibState)
	}
	return st
}

func (k *FibRetracement) Step(st State, x Sample) (State, []float64) {
	s := st.(*fibState).Clone().(*fibState)
	s.bar++
	var levels []float64
	s.swings, levels = k.swings.Step(s.swings, x)
	if !math.IsNaN(levels[0]) {
		s.high = levels[0]
		s.highIdx = s.bar
		s.hasHigh = true
	}
	if !math.IsNaN(levels[1]) {
		s.low = levels[1]
		s.lowIdx = s.bar
		s.hasLow = true
	}

	out := make([]float64, 8)
	for i := range out {
		out[i] = math.NaN()
	}
	if s.hasHigh {
		out[0] = s.high
	}
	if s.hasLow {
		out[1] = s.low
	}
	if !s.hasHigh || !s.hasLow || s.high <= s.low {
		return s, out
	}
	span := s.high - s.low
	if s.highIdx >= s.lowIdx {
		for i, lvl := range fibLevels {
			out[2+i] = s.high - span*lvl
		}
	}
	if s.lowIdx >= s.highIdx {
		for i, lvl := range fibLevels {
			out[5+i] = s.low + span*lvl
		}
	}
	return s, out
}
