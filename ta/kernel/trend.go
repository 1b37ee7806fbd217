package kernel

import "math"

// macdState threads the fast, slow, and signal EMA states.
type macdState struct {
	fast   State
	slow   State
	signal State
}

func (s *macdState) Clone() State {
	return &macdState{fast: s.fast.Clone(), slow: s.slow.Clone(), signal: s.signal.Clone()}
}

// MACD emits the macd line (fast EMA - slow EMA), the signal line
// (EMA of the macd line), and the histogram (macd - signal).
type MACD struct {
	slowPeriod int
	fast       *EMA
	slow       *EMA
	signal     *EMA
}

// NewMACD creates a MACD kernel.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		slowPeriod: slowPeriod,
		fast:       NewEMA(fastPeriod),
		slow:       NewEMA(slowPeriod),
		signal:     NewEMA(signalPeriod),
	}
}

func (k *MACD) MinPeriods() int { return k.slowPeriod }

func (k *MACD) Outputs() []string { return []string{"macd", "signal", "histogram"} }

func (k *MACD) Initialize(history []Sample) State {
	st := &macdState{
		fast:   k.fast.Initialize(nil),
		slow:   k.slow.Initialize(nil),
		signal: k.signal.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*macdState)
	}
	return st
}

func (k *MACD) Step(st State, x Sample) (State, []float64) {
	s := st.(*macdState).Clone().(*macdState)
	var fast, slow []float64
	s.fast, fast = k.fast.Step(s.fast, x)
	s.slow, slow = k.slow.Step(s.slow, x)
	macd := fast[0] - slow[0]
	var signal []float64
	s.signal, signal = k.signal.Step(s.signal, Sample{Value: macd})
	return s, []float64{macd, signal[0], macd - signal[0]}
}

// psarState is the PSAR trend state machine: current stop, extreme
// point, acceleration factor, and the two prior bars used to clamp
// the stop.
type psarState struct {
	sar      float64
	ep       float64
	af       float64
	long     bool
	seeded   bool
	prevHigh float64
	prevLow  float64
	prev2Hi  float64
	prev2Lo  float64
	bars     int
}

func (s *psarState) Clone() State {
	cp := *s
	return &cp
}

// PSAR is the Parabolic Stop-and-Reverse state machine. The first
// bar seeds a long trend with sar = low, ep = high.
type PSAR struct {
	afStart     float64
	afIncrement float64
	afMax       float64
}

// NewPSAR creates a PSAR kernel.
func NewPSAR(afStart, afIncrement, afMax float64) *PSAR {
	return &PSAR{afStart: afStart, afIncrement: afIncrement, afMax: afMax}
}

func (k *PSAR) MinPeriods() int { return 1 }

func (k *PSAR) Outputs() []string { return []string{"psar", "direction"} }

func (k *PSAR) Initialize(history []Sample) State {
	st := &psarState{af: k.afStart, long: true}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*psarState)
	}
	return st
}

func (k *PSAR) Step(st State, x Sample) (State, []float64) {
	s := st.(*psarState).Clone().(*psarState)
	s.bars++
	if !s.seeded {
		s.sar = x.Low
		s.ep = x.High
		s.af = k.afStart
		s.long = true
		s.seeded = true
		s.prevHigh, s.prevLow = x.High, x.Low
		return s, []float64{s.sar, 1}
	}

	sar := s.sar + s.af*(s.ep-s.sar)
	if s.long {
		// Clamp the stop under the prior two lows.
		if s.bars >= 2 && s.prevLow < sar {
			sar = s.prevLow
		}
		if s.bars >= 3 && s.prev2Lo < sar {
			sar = s.prev2Lo
		}
		if x.Low < sar {
			// Flip to short.
			sar = s.ep
			s.ep = x.Low
			s.af = k.afStart
			s.long = false
		} else if x.High > s.ep {
			s.ep = x.High
			s.af = math.Min(s.af+k.afIncrement, k.afMax)
		}
	} else {
		if s.bars >= 2 && s.prevHigh > sar {
			sar = s.prevHigh
		}
		if s.bars >= 3 && s.prev2Hi > sar {
			sar = s.prev2Hi
		}
		if x.High > sar {
			// Flip to long.
			sar = s.ep
			s.ep = x.High
			s.af = k.afStart
			s.long = true
		} else if x.Low < s.ep {
			s.ep = x.Low
			s.af = math.Min(s.af+k.afIncrement, k.afMax)
		}
	}
	s.sar = sar
	s.prev2Hi, s.prev2Lo = s.prevHigh, s.prevLow
	s.prevHigh, s.prevLow = x.High, x.Low
	dir := 1.0
	if !s.long {
		dir = -1
	}
	return s, []float64{s.sar, dir}
}

// supertrendState carries the ATR state plus the latched bands and
// direction.
type supertrendState struct {
	atr        State
	upperBand  float64
	lowerBand  float64
	prevClose  float64
	up         bool
	seededBand bool
}

func (s *supertrendState) Clone() State {
	cp := *s
	cp.atr = s.atr.Clone()
	return &cp
}

// Supertrend builds bands at hl2 +/- multiplier*ATR with latched
// band tightening and a direction that flips when close crosses the
// active band.
type Supertrend struct {
	period     int
	multiplier float64
	atr        *ATR
}

// NewSupertrend creates a supertrend kernel.
func NewSupertrend(period int, multiplier float64) *Supertrend {
	return &Supertrend{period: period, multiplier: multiplier, atr: NewATR(period)}
}

func (k *Supertrend) MinPeriods() int { return k.period }

func (k *Supertrend) Outputs() []string { return []string{"supertrend", "direction"} }

func (k *Supertrend) Initialize(history []Sample) State {
	st := &supertrendState{atr: k.atr.Initialize(nil), up: true}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*supertrendState)
	}
	return st
}

func (k *Supertrend) Step(st State, x Sample) (State, []float64) {
	s := st.(*supertrendState).Clone().(*supertrendState)
	var atr []float64
	s.atr, atr = k.atr.Step(s.atr, x)
	if math.IsNaN(atr[0]) {
		s.prevClose = x.Close
		return s, []float64{math.NaN(), math.NaN()}
	}
	hl2 := (x.High + x.Low) / 2
	basicUpper := hl2 + k.multiplier*atr[0]
	basicLower := hl2 - k.multiplier*atr[0]

	if !s.seededBand {
		s.upperBand = basicUpper
		s.lowerBand = basicLower
		s.seededBand = true
	} else {
		if basicUpper < s.upperBand || s.prevClose > s.upperBand {
			s.upperBand = basicUpper
		}
		if basicLower > s.lowerBand || s.prevClose < s.lowerBand {
			s.lowerBand = basicLower
		}
	}

	if s.up {
		if x.Close < s.lowerBand {
			s.up = false
		}
	} else {
		if x.Close > s.upperBand {
			s.up = true
		}
	}
	s.prevClose = x.Close

	if s.up {
		return s, []float64{s.lowerBand, 1}
	}
	return s, []float64{s.upperBand, -1}
}

// ichimokuState threads the three midline extrema pairs and the
// displacement buffers for the leading spans.
type ichimokuState struct {
	tenkanHi State
	tenkanLo State
	kijunHi  State
	kijunLo  State
	spanBHi  State
	spanBLo  State
	spanABuf []float64
	spanBBuf []float64
}

func (s *ichimokuState) Clone() State {
	cp := &ichimokuState{
		tenkanHi: s.tenkanHi.Clone(),
		tenkanLo: s.tenkanLo.Clone(),
		kijunHi:  s.kijunHi.Clone(),
		kijunLo:  s.kijunLo.Clone(),
		spanBHi:  s.spanBHi.Clone(),
		spanBLo:  s.spanBLo.Clone(),
	}
	cp.spanABuf = append([]float64(nil), s.spanABuf...)
	cp.spanBBuf = append([]float64(nil), s.spanBBuf...)
	return cp
}

// Ichimoku emits the conversion line, base line, and the two leading
// spans displaced forward. The chikou span is the close displaced
// backward, which is non-causal: a streaming step cannot see it, so
// the kernel reports NaN and the batch engine materialises it with a
// negative shift.
type Ichimoku struct {
	tenkanPeriod int
	kijunPeriod  int
	spanBPeriod  int
	displacement int
	tenkanMax    *RollingExtremum
	tenkanMin    *RollingExtremum
	kijunMax     *RollingExtremum
	kijunMin     *RollingExtremum
	spanBMax     *RollingExtremum
	spanBMin     *RollingExtremum
}

// NewIchimoku creates an Ichimoku Cloud kernel.
func NewIchimoku(tenkanPeriod, kijunPeriod, spanBPeriod, displacement int) *Ichimoku {
	return &Ichimoku{
		tenkanPeriod: tenkanPeriod,
		kijunPeriod:  kijunPeriod,
		spanBPeriod:  spanBPeriod,
		displacement: displacement,
		tenkanMax:    NewRollingExtremum(true, false, tenkanPeriod),
		tenkanMin:    NewRollingExtremum(false, false, tenkanPeriod),
		kijunMax:     NewRollingExtremum(true, false, kijunPeriod),
		kijunMin:     NewRollingExtremum(false, false, kijunPeriod),
		spanBMax:     NewRollingExtremum(true, false, spanBPeriod),
		spanBMin:     NewRollingExtremum(false, false, spanBPeriod),
	}
}

func (k *Ichimoku) MinPeriods() int { return k.tenkanPeriod }

func (k *Ichimoku) Outputs() []string {
	return []string{"tenkan_sen", "kijun_sen", "senkou_span_a", "senkou_span_b", "chikou_span"}
}

// Displacement returns the forward displacement in bars; the engine
// uses it to materialise the chikou span in batch mode.
func (k *Ichimoku) Displacement() int { return k.displacement }

func (k *Ichimoku) Initialize(history []Sample) State {
	st := &ichimokuState{
		tenkanHi: k.tenkanMax.Initialize(nil),
		tenkanLo: k.tenkanMin.Initialize(nil),
		kijunHi:  k.kijunMax.Initialize(nil),
		kijunLo:  k.kijunMin.Initialize(nil),
		spanBHi:  k.spanBMax.Initialize(nil),
		spanBLo:  k.spanBMin.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*ichimokuState)
	}
	return st
}

func (k *Ichimoku) Step(st State, x Sample) (State, []float64) {
	s := st.(*ichimokuState).Clone().(*ichimokuState)
	hi := Sample{Value: x.High}
	lo := Sample{Value: x.Low}

	var tHi, tLo, kHi, kLo, bHi, bLo []float64
	s.tenkanHi, tHi = k.tenkanMax.Step(s.tenkanHi, hi)
	s.tenkanLo, tLo = k.tenkanMin.Step(s.tenkanLo, lo)
	s.kijunHi, kHi = k.kijunMax.Step(s.kijunHi, hi)
	s.kijunLo, kLo = k.kijunMin.Step(s.kijunLo, lo)
	s.spanBHi, bHi = k.spanBMax.Step(s.spanBHi, hi)
	s.spanBLo, bLo = k.spanBMin.Step(s.spanBLo, lo)

	tenkan := (tHi[0] + tLo[0]) / 2
	kijun := (kHi[0] + kLo[0]) / 2
	spanARaw := math.NaN()
	if !math.IsNaN(tenkan) && !math.IsNaN(kijun) {
		spanARaw = (tenkan + kijun) / 2
	}
	spanBRaw := (bHi[0] + bLo[0]) / 2

	// The leading spans are the raw midlines displaced forward.
	spanA := math.NaN()
	spanB := math.NaN()
	s.spanABuf = append(s.spanABuf, spanARaw)
	s.spanBBuf = append(s.spanBBuf, spanBRaw)
	if len(s.spanABuf) > k.displacement {
		spanA = s.spanABuf[0]
		s.spanABuf = s.spanABuf[1:]
	}
	if len(s.spanBBuf) > k.displacement {
		spanB = s.spanBBuf[0]
		s.spanBBuf = s.spanBBuf[1:]
	}

	return s, []float64{tenkan, kijun, spanA, spanB, math.NaN()}
}

// fisherState carries the extrema windows and the two smoothing
// recursions.
type fisherState struct {
	highs      State
	lows       State
	value      float64
	fisher     float64
	prevFisher float64
	seeded     bool
}

func (s *fisherState) Clone() State {
	cp := *s
	cp.highs = s.highs.Clone()
	cp.lows = s.lows.Clone()
	return &cp
}

// Fisher is the Fisher Transform over the hl2 midprice normalised to
// its rolling range, with the signal line one bar behind.
type Fisher struct {
	period int
	maxK   *RollingExtremum
	minK   *RollingExtremum
}

// NewFisher creates a Fisher Transform kernel.
func NewFisher(period int) *Fisher {
	return &Fisher{
		period: period,
		maxK:   NewRollingExtremum(true, false, period),
		minK:   NewRollingExtremum(false, false, period),
	}
}

func (k *Fisher) MinPeriods() int { return k.period }

func (k *Fisher) Outputs() []string { return []string{"fisher", "signal"} }

func (k *Fisher) Initialize(history []Sample) State {
	st := &fisherState{highs: k.maxK.Initialize(nil), lows: k.minK.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*fisherState)
	}
	return st
}

func (k *Fisher) Step(st State, x Sample) (State, []float64) {
	s := st.(*fisherState).Clone().(*fisherState)
	hl2 := (x.High + x.Low) / 2
	var hi, lo []float64
	s.highs, hi = k.maxK.Step(s.highs, Sample{Value: hl2})
	s.lows, lo = k.minK.Step(s.lows, Sample{Value: hl2})
	if math.IsNaN(hi[0]) || math.IsNaN(lo[0]) {
		return s, []float64{math.NaN(), math.NaN()}
	}
	raw := 0.0
	if hi[0] != lo[0] {
		raw = (hl2-lo[0])/(hi[0]-lo[0]) - 0.5
	}
	value := 0.33*2*raw + 0.67*s.value
	if value > 0.999 {
		value = 0.999
	} else if value < -0.999 {
		value = -0.999
	}
	signal := s.fisher
	fisher := 0.5*math.Log((1+value)/(1-value)) + 0.5*s.fisher
	if !s.seeded {
		signal = fisher
		s.seeded = true
	}
	s.value = value
	s.prevFisher = s.fisher
	s.fisher = fisher
	return s, []float64{fisher, signal}
}

// elderState wraps the EMA state.
type elderState struct {
	ema State
}

func (s *elderState) Clone() State { return &elderState{ema: s.ema.Clone()} }

// ElderRay emits bull power (high - EMA) and bear power (low - EMA).
type ElderRay struct {
	period int
	ema    *EMA
}

// NewElderRay creates an Elder Ray kernel.
func NewElderRay(period int) *ElderRay {
	return &ElderRay{period: period, ema: NewEMA(period)}
}

func (k *ElderRay) MinPeriods() int { return k.period }

func (k *ElderRay) Outputs() []string { return []string{"bull_power", "bear_power"} }

func (k *ElderRay) Initialize(history []Sample) State {
	st := &elderState{ema: k.ema.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*elderState)
	}
	return st
}

func (k *ElderRay) Step(st State, x Sample) (State, []float64) {
	s := st.(*elderState).Clone().(*elderState)
	var ema []float64
	s.ema, ema = k.ema.Step(s.ema, Sample{Value: x.Close})
	return s, []float64{x.High - ema[0], x.Low - ema[0]}
}
