package kernel

// Event kernels test aligned inputs and output 1/0 flags. Crossing,
// rising/falling and channel enter/exit are two-tick tests whose first
// index is always false: there is no previous bar to compare against.
// in_channel and out test the current bar alone.

type crossMode int

const (
	crossUp crossMode = iota
	crossDown
	crossAny
)

// crossState remembers the previous pair.
type crossState struct {
	prevA float64
	prevB float64
	seen  bool
}

func (s *crossState) Clone() State {
	cp := *s
	return &cp
}

// Cross detects a crossing between two series: crossup at i iff
// a[i] > b[i] and a[i-1] <= b[i-1]; crossdown mirrored; cross is
// either.
type Cross struct {
	mode crossMode
}

// NewCross creates a crossing-event kernel.
func NewCross(mode crossMode) *Cross { return &Cross{mode: mode} }

func (*Cross) MinPeriods() int { return 1 }

func (*Cross) Outputs() []string { return []string{"result"} }

func (k *Cross) Initialize(history []Sample) State {
	st := &crossState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*crossState)
	}
	return st
}

func (k *Cross) Step(st State, x Sample) (State, []float64) {
	s := st.(*crossState).Clone().(*crossState)
	a, b := x.Value, x.Other
	out := false
	if s.seen {
		up := a > b && s.prevA <= s.prevB
		down := a < b && s.prevA >= s.prevB
		switch k.mode {
		case crossUp:
			out = up
		case crossDown:
			out = down
		default:
			out = up || down
		}
	}
	s.prevA, s.prevB, s.seen = a, b, true
	return s, []float64{boolVal(out)}
}

type trendEventMode int

const (
	trendRising trendEventMode = iota
	trendFalling
	trendRisingPct
	trendFallingPct
)

// TrendEvent detects rising/falling movement, optionally by a
// percentage threshold.
type TrendEvent struct {
	mode trendEventMode
	pct  float64
}

// NewTrendEvent creates a rising/falling event kernel.
func NewTrendEvent(mode trendEventMode, pct float64) *TrendEvent {
	return &TrendEvent{mode: mode, pct: pct}
}

func (*TrendEvent) MinPeriods() int { return 1 }

func (*TrendEvent) Outputs() []string { return []string{"result"} }

func (k *TrendEvent) Initialize(history []Sample) State {
	st := &prevState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*prevState)
	}
	return st
}

func (k *TrendEvent) Step(st State, x Sample) (State, []float64) {
	s := st.(*prevState).Clone().(*prevState)
	out := false
	if s.seen {
		switch k.mode {
		case trendRising:
			out = x.Value > s.prev
		case trendFalling:
			out = x.Value < s.prev
		case trendRisingPct:
			out = x.Value >= s.prev*(1+k.pct/100)
		case trendFallingPct:
			out = x.Value <= s.prev*(1-k.pct/100)
		}
	}
	s.prev, s.seen = x.Value, true
	return s, []float64{boolVal(out)}
}

type channelMode int

const (
	channelIn channelMode = iota
	channelOut
	channelEnter
	channelExit
)

// channelState remembers whether the prior bar was inside the
// channel.
type channelState struct {
	prevIn bool
	seen   bool
}

func (s *channelState) Clone() State {
	cp := *s
	return &cp
}

// ChannelEvent tests a price series against upper and lower bounds:
// in (lower <= p <= upper), out (p > upper or p < lower), and the
// two-tick enter/exit transitions.
type ChannelEvent struct {
	mode channelMode
}

// NewChannelEvent creates a channel-event kernel. Inputs arrive as
// Value = price, Other = upper bound, Extra = lower bound.
func NewChannelEvent(mode channelMode) *ChannelEvent { return &ChannelEvent{mode: mode} }

func (*ChannelEvent) MinPeriods() int { return 1 }

func (*ChannelEvent) Outputs() []string { return []string{"result"} }

func (k *ChannelEvent) Initialize(history []Sample) State {
	st := &channelState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*channelState)
	}
	return st
}

func (k *ChannelEvent) Step(st State, x Sample) (State, []float64) {
	s := st.(*channelState).Clone().(*channelState)
	in := x.Value >= x.Extra && x.Value <= x.Other
	out := false
	switch k.mode {
	case channelIn:
		out = in
	case channelOut:
		out = !in
	case channelEnter:
		out = s.seen && in && !s.prevIn
	case channelExit:
		out = s.seen && !in && s.prevIn
	}
	s.prevIn, s.seen = in, true
	return s, []float64{boolVal(out)}
}
