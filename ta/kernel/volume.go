package kernel

import "math"

// obvState carries the running balance and the prior close.
type obvState struct {
	prevClose float64
	hasPrev   bool
	total     float64
}

func (s *obvState) Clone() State {
	cp := *s
	return &cp
}

// OBV is On-Balance Volume: volume added on up closes, subtracted on
// down closes.
type OBV struct{}

// NewOBV creates an OBV kernel.
func NewOBV() *OBV { return &OBV{} }

func (*OBV) MinPeriods() int { return 1 }

func (*OBV) Outputs() []string { return []string{"result"} }

func (*OBV) Initialize(history []Sample) State {
	st := &obvState{}
	k := &OBV{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*obvState)
	}
	return st
}

func (*OBV) Step(st State, x Sample) (State, []float64) {
	s := st.(*obvState).Clone().(*obvState)
	if s.hasPrev {
		if x.Close > s.prevClose {
			s.total += x.Volume
		} else if x.Close < s.prevClose {
			s.total -= x.Volume
		}
	}
	s.prevClose, s.hasPrev = x.Close, true
	return s, []float64{s.total}
}

// vwapState carries the cumulative price-volume and volume totals.
type vwapState struct {
	sumPV  float64
	sumVol float64
}

func (s *vwapState) Clone() State {
	cp := *s
	return &cp
}

// VWAP is the cumulative volume-weighted average of the typical
// price.
type VWAP struct{}

// NewVWAP creates a VWAP kernel.
func NewVWAP() *VWAP { return &VWAP{} }

func (*VWAP) MinPeriods() int { return 1 }

func (*VWAP) Outputs() []string { return []string{"result"} }

func (*VWAP) Initialize(history []Sample) State {
	st := &vwapState{}
	k := &VWAP{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*vwapState)
	}
	return st
}

func (*VWAP) Step(st State, x Sample) (State, []float64) {
	s := st.(*vwapState).Clone().(*vwapState)
	tp := (x.High + x.Low + x.Close) / 3
	s.sumPV += tp * x.Volume
	s.sumVol += x.Volume
	if s.sumVol == 0 {
		return s, []float64{math.NaN()}
	}
	return s, []float64{s.sumPV / s.sumVol}
}

// cmfState pairs the rolling money-flow-volume and volume sums.
type cmfState struct {
	mfv State
	vol State
}

func (s *cmfState) Clone() State {
	return &cmfState{mfv: s.mfv.Clone(), vol: s.vol.Clone()}
}

// CMF is the Chaikin Money Flow: rolling sum of money-flow volume
// over rolling volume. A flat bar contributes zero flow.
type CMF struct {
	period int
	sum    *RollingStat
}

// NewCMF creates a CMF kernel.
func NewCMF(period int) *CMF {
	return &CMF{period: period, sum: NewRollingStat(statSum, period)}
}

func (k *CMF) MinPeriods() int { return k.period }

func (k *CMF) Outputs() []string { return []string{"result"} }

func (k *CMF) Initialize(history []Sample) State {
	st := &cmfState{mfv: k.sum.Initialize(nil), vol: k.sum.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*cmfState)
	}
	return st
}

func (k *CMF) Step(st State, x Sample) (State, []float64) {
	s := st.(*cmfState).Clone().(*cmfState)
	multiplier := 0.0
	if x.High != x.Low {
		multiplier = ((x.Close - x.Low) - (x.High - x.Close)) / (x.High - x.Low)
	}
	var mfv, vol []float64
	s.mfv, mfv = k.sum.Step(s.mfv, Sample{Value: multiplier * x.Volume})
	s.vol, vol = k.sum.Step(s.vol, Sample{Value: x.Volume})
	if math.IsNaN(vol[0]) || vol[0] == 0 {
		return s, []float64{math.NaN()}
	}
	return s, []float64{mfv[0] / vol[0]}
}

// klingerState carries the volume-force trend machine and the three
// EMA recursions.
type klingerState struct {
	prevHLC  float64
	prevDM   float64
	trend    float64
	cm       float64
	hasPrev  bool
	emaFast  State
	emaSlow  State
	emaSig   State
	barCount int
}

func (s *klingerState) Clone() State {
	cp := *s
	cp.emaFast = s.emaFast.Clone()
	cp.emaSlow = s.emaSlow.Clone()
	cp.emaSig = s.emaSig.Clone()
	return &cp
}

// Klinger is the Klinger Volume Oscillator: a trend-signed volume
// force smoothed by fast and slow EMAs, with an EMA signal line.
type Klinger struct {
	fastPeriod int
	slowPeriod int
	fast       *EMA
	slow       *EMA
	signal     *EMA
}

// NewKlinger creates a Klinger oscillator kernel.
func NewKlinger(fastPeriod, slowPeriod, signalPeriod int) *Klinger {
	return &Klinger{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		fast:       NewEMA(fastPeriod),
		slow:       NewEMA(slowPeriod),
		signal:     NewEMA(signalPeriod),
	}
}

func (k *Klinger) MinPeriods() int { return 2 }

func (k *Klinger) Outputs() []string { return []string{"klinger", "signal"} }

func (k *Klinger) Initialize(history []Sample) State {
	st := &klingerState{
		emaFast: k.fast.Initialize(nil),
		emaSlow: k.slow.Initialize(nil),
		emaSig:  k.signal.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*klingerState)
	}
	return st
}

func (k *Klinger) Step(st State, x Sample) (State, []float64) {
	s := st.(*klingerState).Clone().(*klingerState)
	s.barCount++
	hlc := x.High + x.Low + x.Close
	dm := x.High - x.Low
	if !s.hasPrev {
		s.prevHLC, s.prevDM = hlc, dm
		s.cm = dm
		s.trend = 1
		s.hasPrev = true
		return s, []float64{math.NaN(), math.NaN()}
	}
	trend := -1.0
	if hlc > s.prevHLC {
		trend = 1
	}
	if trend == s.trend {
		s.cm += dm
	} else {
		s.cm = s.prevDM + dm
	}
	s.trend = trend
	s.prevHLC, s.prevDM = hlc, dm

	vf := 0.0
	if s.cm != 0 {
		vf = x.Volume * math.Abs(2*(dm/s.cm)-1) * 100 * trend
	}

	var fast, slow []float64
	s.emaFast, fast = k.fast.Step(s.emaFast, Sample{Value: vf})
	s.emaSlow, slow = k.slow.Step(s.emaSlow, Sample{Value: vf})
	kvo := fast[0] - slow[0]
	var sig []float64
	s.emaSig, sig = k.signal.Step(s.emaSig, Sample{Value: kvo})
	return s, []float64{kvo, sig[0]}
}
