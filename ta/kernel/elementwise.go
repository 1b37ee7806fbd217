package kernel

import "math"

// emptyState is shared by stateless kernels.
type emptyState struct{}

func (emptyState) Clone() State { return emptyState{} }

// Passthrough forwards its input unchanged; backs select().
type Passthrough struct{}

// NewPassthrough creates a passthrough kernel.
func NewPassthrough() *Passthrough { return &Passthrough{} }

func (*Passthrough) MinPeriods() int { return 1 }

func (*Passthrough) Outputs() []string { return []string{"result"} }

func (*Passthrough) Initialize([]Sample) State { return emptyState{} }

func (*Passthrough) Step(st State, x Sample) (State, []float64) {
	return st, []float64{x.Value}
}

// ElementFunc applies a pure function element-wise (abs, sign).
type ElementFunc struct {
	name string
	fn   func(float64) float64
}

// NewElementFunc creates a stateless element-wise kernel.
func NewElementFunc(name string, fn func(float64) float64) *ElementFunc {
	return &ElementFunc{name: name, fn: fn}
}

func (*ElementFunc) MinPeriods() int { return 1 }

func (*ElementFunc) Outputs() []string { return []string{"result"} }

func (*ElementFunc) Initialize([]Sample) State { return emptyState{} }

func (k *ElementFunc) Step(st State, x Sample) (State, []float64) {
	return st, []float64{k.fn(x.Value)}
}

// prevState remembers the prior value.
type prevState struct {
	prev float64
	seen bool
}

func (s *prevState) Clone() State {
	cp := *s
	return &cp
}

// Diff emits x[i] - x[i-1]; the first index is undefined.
type Diff struct{}

// NewDiff creates a diff kernel.
func NewDiff() *Diff { return &Diff{} }

func (*Diff) MinPeriods() int { return 2 }

func (*Diff) Outputs() []string { return []string{"result"} }

func (*Diff) Initialize(history []Sample) State {
	st := &prevState{}
	for _, x := range history {
		st.prev, st.seen = x.Value, true
	}
	return st
}

func (*Diff) Step(st State, x Sample) (State, []float64) {
	s := st.(*prevState).Clone().(*prevState)
	out := math.NaN()
	if s.seen {
		out = x.Value - s.prev
	}
	s.prev, s.seen = x.Value, true
	return s, []float64{out}
}

// shiftState buffers the last k values.
type shiftState struct {
	buf []float64
}

func (s *shiftState) Clone() State {
	return &shiftState{buf: append([]float64(nil), s.buf...)}
}

// Shift emits the value k bars ago. Negative lags are rejected at
// plan time, so k >= 1 here.
type Shift struct {
	k int
}

// NewShift creates a shift(k) kernel.
func NewShift(k int) *Shift { return &Shift{k: k} }

func (k *Shift) MinPeriods() int { return k.k + 1 }

func (*Shift) Outputs() []string { return []string{"result"} }

func (k *Shift) Initialize(history []Sample) State {
	st := &shiftState{}
	for _, x := range history {
		st.buf = append(st.buf, x.Value)
		if len(st.buf) > k.k {
			st.buf = st.buf[1:]
		}
	}
	return st
}

func (k *Shift) Step(st State, x Sample) (State, []float64) {
	s := st.(*shiftState).Clone().(*shiftState)
	out := math.NaN()
	if len(s.buf) == k.k {
		out = s.buf[0]
	}
	s.buf = append(s.buf, x.Value)
	if len(s.buf) > k.k {
		s.buf = s.buf[1:]
	}
	return s, []float64{out}
}

// cumSumState carries the running total.
type cumSumState struct {
	total float64
}

func (s *cumSumState) Clone() State {
	cp := *s
	return &cp
}

// CumSum emits the cumulative sum of all inputs so far.
type CumSum struct{}

// NewCumSum creates a cumulative-sum kernel.
func NewCumSum() *CumSum { return &CumSum{} }

func (*CumSum) MinPeriods() int { return 1 }

func (*CumSum) Outputs() []string { return []string{"result"} }

func (*CumSum) Initialize(history []Sample) State {
	st := &cumSumState{}
	for _, x := range history {
		st.total += x.Value
	}
	return st
}

func (*CumSum) Step(st State, x Sample) (State, []float64) {
	s := st.(*cumSumState).Clone().(*cumSumState)
	s.total += x.Value
	return s, []float64{s.total}
}

// TrueRange emits max(h-l, |h-prev_c|, |l-prev_c|); the first bar
// falls back to h-l.
type TrueRange struct{}

// NewTrueRange creates a true-range kernel.
func NewTrueRange() *TrueRange { return &TrueRange{} }

func (*TrueRange) MinPeriods() int { return 1 }

func (*TrueRange) Outputs() []string { return []string{"result"} }

func (*TrueRange) Initialize(history []Sample) State {
	st := &prevState{}
	for _, x := range history {
		st.prev, st.seen = x.Close, true
	}
	return st
}

func (*TrueRange) Step(st State, x Sample) (State, []float64) {
	s := st.(*prevState).Clone().(*prevState)
	out := trueRangeValue(x.High, x.Low, s.prev, s.seen)
	s.prev, s.seen = x.Close, true
	return s, []float64{out}
}

func trueRangeValue(high, low, prevClose float64, hasPrev bool) float64 {
	tr := high - low
	if hasPrev {
		if v := math.Abs(high - prevClose); v > tr {
			tr = v
		}
		if v := math.Abs(low - prevClose); v > tr {
			tr = v
		}
	}
	return tr
}

// TypicalPrice emits (high + low + close) / 3.
type TypicalPrice struct{}

// NewTypicalPrice creates a typical-price kernel.
func NewTypicalPrice() *TypicalPrice { return &TypicalPrice{} }

func (*TypicalPrice) MinPeriods() int { return 1 }

func (*TypicalPrice) Outputs() []string { return []string{"result"} }

func (*TypicalPrice) Initialize([]Sample) State { return emptyState{} }

func (*TypicalPrice) Step(st State, x Sample) (State, []float64) {
	return st, []float64{(x.High + x.Low + x.Close) / 3}
}
