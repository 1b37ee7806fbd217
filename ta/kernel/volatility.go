package kernel

import "math"

// atrState carries the previous close and the Wilder average of the
// true range.
type atrState struct {
	prevClose float64
	hasPrev   bool
	rma       State
}

func (s *atrState) Clone() State {
	cp := *s
	cp.rma = s.rma.Clone()
	return &cp
}

// ATR is the Average True Range: an RMA of the true range. The first
// bar's true range is high − low; the RMA is seeded with the mean of
// the first period true ranges.
type ATR struct {
	period int
	rma    *RMA
}

// NewATR creates an ATR kernel.
func NewATR(period int) *ATR { return &ATR{period: period, rma: NewRMA(period)} }

func (k *ATR) MinPeriods() int { return k.period }

func (k *ATR) Outputs() []string { return []string{"result"} }

func (k *ATR) Initialize(history []Sample) State {
	st := &atrState{rma: k.rma.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*atrState)
	}
	return st
}

func (k *ATR) Step(st State, x Sample) (State, []float64) {
	s := st.(*atrState).Clone().(*atrState)
	tr := trueRangeValue(x.High, x.Low, s.prevClose, s.hasPrev)
	s.prevClose, s.hasPrev = x.Close, true
	var out []float64
	s.rma, out = k.rma.Step(s.rma, Sample{Value: tr})
	return s, out
}

// bollingerState wraps the shared rolling window totals.
type bollingerState struct {
	stat State
}

func (s *bollingerState) Clone() State { return &bollingerState{stat: s.stat.Clone()} }

// Bollinger emits upper, middle, and lower bands: SMA +/- k * std,
// with the population (N) standard deviation.
type Bollinger struct {
	period int
	stdDev float64
	stat   *RollingStat
}

// NewBollinger creates a Bollinger Bands kernel.
func NewBollinger(period int, stdDev float64) *Bollinger {
	return &Bollinger{period: period, stdDev: stdDev, stat: NewRollingStat(statStd, period)}
}

func (k *Bollinger) MinPeriods() int { return k.period }

func (k *Bollinger) Outputs() []string { return []string{"upper", "middle", "lower"} }

func (k *Bollinger) Initialize(history []Sample) State {
	return &bollingerState{stat: k.stat.Initialize(history)}
}

func (k *Bollinger) Step(st State, x Sample) (State, []float64) {
	s := st.(*bollingerState).Clone().(*bollingerState)
	next, stdOut := k.stat.Step(s.stat, x)
	s.stat = next
	if math.IsNaN(stdOut[0]) {
		return s, []float64{math.NaN(), math.NaN(), math.NaN()}
	}
	inner := next.(*rollingStatState)
	mean := inner.sum / float64(k.period)
	offset := k.stdDev * stdOut[0]
	return s, []float64{mean + offset, mean, mean - offset}
}

// keltnerState threads the EMA and ATR states.
type keltnerState struct {
	ema State
	atr State
}

func (s *keltnerState) Clone() State {
	return &keltnerState{ema: s.ema.Clone(), atr: s.atr.Clone()}
}

// Keltner emits upper, middle, and lower channel lines:
// EMA +/- multiplier * ATR.
type Keltner struct {
	emaPeriod  int
	atrPeriod  int
	multiplier float64
	ema        *EMA
	atr        *ATR
}

// NewKeltner creates a Keltner Channels kernel.
func NewKeltner(emaPeriod, atrPeriod int, multiplier float64) *Keltner {
	return &Keltner{
		emaPeriod:  emaPeriod,
		atrPeriod:  atrPeriod,
		multiplier: multiplier,
		ema:        NewEMA(emaPeriod),
		atr:        NewATR(atrPeriod),
	}
}

func (k *Keltner) MinPeriods() int { return k.atrPeriod }

func (k *Keltner) Outputs() []string { return []string{"upper", "middle", "lower"} }

func (k *Keltner) Initialize(history []Sample) State {
	st := &keltnerState{ema: k.ema.Initialize(nil), atr: k.atr.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*keltnerState)
	}
	return st
}

func (k *Keltner) Step(st State, x Sample) (State, []float64) {
	s := st.(*keltnerState).Clone().(*keltnerState)
	var ema, atr []float64
	s.ema, ema = k.ema.Step(s.ema, Sample{Value: x.Close})
	s.atr, atr = k.atr.Step(s.atr, x)
	if math.IsNaN(atr[0]) {
		return s, []float64{math.NaN(), math.NaN(), math.NaN()}
	}
	offset := k.multiplier * atr[0]
	return s, []float64{ema[0] + offset, ema[0], ema[0] - offset}
}

// donchianState pairs the extrema windows.
type donchianState struct {
	highs State
	lows  State
}

func (s *donchianState) Clone() State {
	return &donchianState{highs: s.highs.Clone(), lows: s.lows.Clone()}
}

// Donchian emits the rolling-high upper channel, rolling-low lower
// channel, and their midline.
type Donchian struct {
	period int
	maxK   *RollingExtremum
	minK   *RollingExtremum
}

// NewDonchian creates a Donchian Channels kernel.
func NewDonchian(period int) *Donchian {
	return &Donchian{
		period: period,
		maxK:   NewRollingExtremum(true, false, period),
		minK:   NewRollingExtremum(false, false, period),
	}
}

func (k *Donchian) MinPeriods() int { return k.period }

func (k *Donchian) Outputs() []string { return []string{"upper", "middle", "lower"} }

func (k *Donchian) Initialize(history []Sample) State {
	st := &donchianState{highs: k.maxK.Initialize(nil), lows: k.minK.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*donchianState)
	}
	return st
}

func (k *Donchian) Step(st State, x Sample) (State, []float64) {
	s := st.(*donchianState).Clone().(*donchianState)
	var hi, lo []float64
	s.highs, hi = k.maxK.Step(s.highs, Sample{Value: x.High})
	s.lows, lo = k.minK.Step(s.lows, Sample{Value: x.Low})
	if math.IsNaN(hi[0]) || math.IsNaN(lo[0]) {
		return s, []float64{math.NaN(), math.NaN(), math.NaN()}
	}
	return s, []float64{hi[0], (hi[0] + lo[0]) / 2, lo[0]}
}
