package kernel

import "math"

// rsiState tracks Wilder-smoothed average gains and losses.
type rsiState struct {
	prevClose float64
	hasPrev   bool
	avgGain   float64
	avgLoss   float64
	diffs     int // number of diffs consumed
}

func (s *rsiState) Clone() State {
	cp := *s
	return &cp
}

// RSI is the Relative Strength Index with Wilder smoothing. The
// first averages are simple means of the first `period` gains and
// losses. When the average loss is zero the output is 100 with gains
// present; with gains also zero it is 50 by default
// (zeroLossHundred flips that branch to 100).
type RSI struct {
	period          int
	zeroLossHundred bool
}

// NewRSI creates an RSI kernel.
func NewRSI(period int, zeroLossHundred bool) *RSI {
	return &RSI{period: period, zeroLossHundred: zeroLossHundred}
}

func (k *RSI) MinPeriods() int { return k.period + 1 }

func (k *RSI) Outputs() []string { return []string{"result"} }

func (k *RSI) Initialize(history []Sample) State {
	st := &rsiState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*rsiState)
	}
	return st
}

func (k *RSI) Step(st State, x Sample) (State, []float64) {
	s := st.(*rsiState).Clone().(*rsiState)
	if !s.hasPrev {
		s.prevClose, s.hasPrev = x.Value, true
		return s, []float64{math.NaN()}
	}
	diff := x.Value - s.prevClose
	gain, loss := 0.0, 0.0
	if diff > 0 {
		gain = diff
	} else if diff < 0 {
		loss = -diff
	}
	s.prevClose = x.Value
	s.diffs++
	if s.diffs <= k.period {
		// Seed averages as simple means of the first period diffs.
		s.avgGain += (gain - s.avgGain) / float64(s.diffs)
		s.avgLoss += (loss - s.avgLoss) / float64(s.diffs)
		if s.diffs < k.period {
			return s, []float64{math.NaN()}
		}
	} else {
		s.avgGain = (s.avgGain*float64(k.period-1) + gain) / float64(k.period)
		s.avgLoss = (s.avgLoss*float64(k.period-1) + loss) / float64(k.period)
	}

	var rsi float64
	switch {
	case s.avgLoss == 0 && s.avgGain > 0:
		rsi = 100
	case s.avgLoss == 0:
		rsi = 50
		if k.zeroLossHundred {
			rsi = 100
		}
	default:
		rs := s.avgGain / s.avgLoss
		rsi = 100 - 100/(1+rs)
	}
	if rsi < 0 {
		rsi = 0
	} else if rsi > 100 {
		rsi = 100
	}
	return s, []float64{rsi}
}

// ROC is the rate of change over N periods, in percent.
type ROC struct {
	period int
	shift  *Shift
}

// NewROC creates a rate-of-change kernel.
func NewROC(period int) *ROC { return &ROC{period: period, shift: NewShift(period)} }

func (k *ROC) MinPeriods() int { return k.period + 1 }

func (k *ROC) Outputs() []string { return []string{"result"} }

func (k *ROC) Initialize(history []Sample) State { return k.shift.Initialize(history) }

func (k *ROC) Step(st State, x Sample) (State, []float64) {
	next, lagged := k.shift.Step(st, x)
	out := math.NaN()
	if !math.IsNaN(lagged[0]) && lagged[0] != 0 {
		out = (x.Value - lagged[0]) / lagged[0] * 100
	}
	return next, []float64{out}
}

// cmoState keeps the rolling windows of gains and losses.
type cmoState struct {
	prev    float64
	hasPrev bool
	gains   []float64
	losses  []float64
}

func (s *cmoState) Clone() State {
	cp := *s
	cp.gains = append([]float64(nil), s.gains...)
	cp.losses = append([]float64(nil), s.losses...)
	return &cp
}

// CMO is the Chande Momentum Oscillator:
// 100 * (sum_gains - sum_losses) / (sum_gains + sum_losses).
type CMO struct {
	period int
}

// NewCMO creates a CMO kernel.
func NewCMO(period int) *CMO { return &CMO{period: period} }

func (k *CMO) MinPeriods() int { return k.period + 1 }

func (k *CMO) Outputs() []string { return []string{"result"} }

func (k *CMO) Initialize(history []Sample) State {
	st := &cmoState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*cmoState)
	}
	return st
}

func (k *CMO) Step(st State, x Sample) (State, []float64) {
	s := st.(*cmoState).Clone().(*cmoState)
	if !s.hasPrev {
		s.prev, s.hasPrev = x.Value, true
		return s, []float64{math.NaN()}
	}
	diff := x.Value - s.prev
	s.prev = x.Value
	gain, loss := 0.0, 0.0
	if diff > 0 {
		gain = diff
	} else if diff < 0 {
		loss = -diff
	}
	s.gains = append(s.gains, gain)
	s.losses = append(s.losses, loss)
	if len(s.gains) > k.period {
		s.gains = s.gains[1:]
		s.losses = s.losses[1:]
	}
	if len(s.gains) < k.period {
		return s, []float64{math.NaN()}
	}
	var sumG, sumL float64
	for i := range s.gains {
		sumG += s.gains[i]
		sumL += s.losses[i]
	}
	if sumG+sumL == 0 {
		return s, []float64{0}
	}
	return s, []float64{100 * (sumG - sumL) / (sumG + sumL)}
}

// cciState keeps the rolling typical-price window.
type cciState struct {
	window []float64
}

func (s *cciState) Clone() State {
	return &cciState{window: append([]float64(nil), s.window...)}
}

// CCI is the Commodity Channel Index:
// (tp - SMA(tp)) / (0.015 * mean deviation).
type CCI struct {
	period int
}

// NewCCI creates a CCI kernel.
func NewCCI(period int) *CCI { return &CCI{period: period} }

func (k *CCI) MinPeriods() int { return k.period }

func (k *CCI) Outputs() []string { return []string{"result"} }

func (k *CCI) Initialize(history []Sample) State {
	st := &cciState{}
	keep := history
	if len(keep) > k.period-1 && k.period > 1 {
		keep = keep[len(keep)-(k.period-1):]
	}
	for _, x := range keep {
		st.window = append(st.window, (x.High+x.Low+x.Close)/3)
	}
	return st
}

func (k *CCI) Step(st State, x Sample) (State, []float64) {
	s := st.(*cciState).Clone().(*cciState)
	tp := (x.High + x.Low + x.Close) / 3
	s.window = append(s.window, tp)
	if len(s.window) > k.period {
		s.window = s.window[1:]
	}
	if len(s.window) < k.period {
		return s, []float64{math.NaN()}
	}
	var sum float64
	for _, v := range s.window {
		sum += v
	}
	mean := sum / float64(k.period)
	var dev float64
	for _, v := range s.window {
		dev += math.Abs(v - mean)
	}
	dev /= float64(k.period)
	if dev == 0 {
		return s, []float64{0}
	}
	return s, []float64{(tp - mean) / (0.015 * dev)}
}

// williamsState pairs rolling high-max and low-min states.
type williamsState struct {
	highs State
	lows  State
}

func (s *williamsState) Clone() State {
	return &williamsState{highs: s.highs.Clone(), lows: s.lows.Clone()}
}

// WilliamsR is Williams %R:
// -100 * (highest high - close) / (highest high - lowest low).
type WilliamsR struct {
	period int
	maxK   *RollingExtremum
	minK   *RollingExtremum
}

// NewWilliamsR creates a Williams %R kernel.
func NewWilliamsR(period int) *WilliamsR {
	return &WilliamsR{
		period: period,
		maxK:   NewRollingExtremum(true, false, period),
		minK:   NewRollingExtremum(false, false, period),
	}
}

func (k *WilliamsR) MinPeriods() int { return k.period }

func (k *WilliamsR) Outputs() []string { return []string{"result"} }

func (k *WilliamsR) Initialize(history []Sample) State {
	st := &williamsState{highs: k.maxK.Initialize(nil), lows: k.minK.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*williamsState)
	}
	return st
}

func (k *WilliamsR) Step(st State, x Sample) (State, []float64) {
	s := st.(*williamsState).Clone().(*williamsState)
	var hi, lo []float64
	s.highs, hi = k.maxK.Step(s.highs, Sample{Value: x.High})
	s.lows, lo = k.minK.Step(s.lows, Sample{Value: x.Low})
	if math.IsNaN(hi[0]) || math.IsNaN(lo[0]) {
		return s, []float64{math.NaN()}
	}
	denom := hi[0] - lo[0]
	if denom == 0 {
		return s, []float64{-50}
	}
	return s, []float64{-100 * (hi[0] - x.Close) / denom}
}

// aoState pairs the fast and slow median-price SMA states.
type aoState struct {
	fast State
	slow State
}

func (s *aoState) Clone() State {
	return &aoState{fast: s.fast.Clone(), slow: s.slow.Clone()}
}

// AO is the Awesome Oscillator: SMA(hl2, fast) - SMA(hl2, slow).
type AO struct {
	fastPeriod int
	slowPeriod int
	fast       *RollingStat
	slow       *RollingStat
}

// NewAO creates an Awesome Oscillator kernel.
func NewAO(fastPeriod, slowPeriod int) *AO {
	return &AO{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		fast:       NewRollingStat(statMean, fastPeriod),
		slow:       NewRollingStat(statMean, slowPeriod),
	}
}

func (k *AO) MinPeriods() int { return k.slowPeriod }

func (k *AO) Outputs() []string { return []string{"result"} }

func (k *AO) Initialize(history []Sample) State {
	st := &aoState{fast: k.fast.Initialize(nil), slow: k.slow.Initialize(nil)}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*aoState)
	}
	return st
}

func (k *AO) Step(st State, x Sample) (State, []float64) {
	s := st.(*aoState).Clone().(*aoState)
	hl2 := Sample{Value: (x.High + x.Low) / 2}
	var f, sl []float64
	s.fast, f = k.fast.Step(s.fast, hl2)
	s.slow, sl = k.slow.Step(s.slow, hl2)
	if math.IsNaN(f[0]) || math.IsNaN(sl[0]) {
		return s, []float64{math.NaN()}
	}
	return s, []float64{f[0] - sl[0]}
}

// coppockState threads two ROC states and the WMA state.
type coppockState struct {
	rocLong  State
	rocShort State
	wma      State
}

func (s *coppockState) Clone() State {
	return &coppockState{rocLong: s.rocLong.Clone(), rocShort: s.rocShort.Clone(), wma: s.wma.Clone()}
}

// Coppock is WMA(wma_period) of ROC(roc_long) + ROC(roc_short).
type Coppock struct {
	wmaPeriod int
	rocLongP  int
	rocLong   *ROC
	rocShort  *ROC
	wma       *WMA
}

// NewCoppock creates a Coppock Curve kernel.
func NewCoppock(wmaPeriod, rocLong, rocShort int) *Coppock {
	return &Coppock{
		wmaPeriod: wmaPeriod,
		rocLongP:  rocLong,
		rocLong:   NewROC(rocLong),
		rocShort:  NewROC(rocShort),
		wma:       NewWMA(wmaPeriod),
	}
}

func (k *Coppock) MinPeriods() int { return k.rocLongP + k.wmaPeriod }

func (k *Coppock) Outputs() []string { return []string{"result"} }

func (k *Coppock) Initialize(history []Sample) State {
	st := &coppockState{
		rocLong:  k.rocLong.Initialize(nil),
		rocShort: k.rocShort.Initialize(nil),
		wma:      k.wma.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*coppockState)
	}
	return st
}

func (k *Coppock) Step(st State, x Sample) (State, []float64) {
	s := st.(*coppockState).Clone().(*coppockState)
	var long, short []float64
	s.rocLong, long = k.rocLong.Step(s.rocLong, x)
	s.rocShort, short = k.rocShort.Step(s.rocShort, x)
	if math.IsNaN(long[0]) || math.IsNaN(short[0]) {
		return s, []float64{math.NaN()}
	}
	var out []float64
	s.wma, out = k.wma.Step(s.wma, Sample{Value: long[0] + short[0]})
	return s, []float64{out[0]}
}

// stochasticState pairs rolling extrema with the %D SMA window.
type stochasticState struct {
	highs State
	lows  State
	d     State
}

func (s *stochasticState) Clone() State {
	return &stochasticState{highs: s.highs.Clone(), lows: s.lows.Clone(), d: s.d.Clone()}
}

// Stochastic emits %K and %D. %K uses monotonic-deque rolling
// extrema over high/low; a flat window yields the neutral 50. %D is
// an SMA of %K.
type Stochastic struct {
	kPeriod int
	dPeriod int
	maxK    *RollingExtremum
	minK    *RollingExtremum
	dK      *RollingStat
}

// NewStochastic creates a stochastic oscillator kernel.
func NewStochastic(kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{
		kPeriod: kPeriod,
		dPeriod: dPeriod,
		maxK:    NewRollingExtremum(true, false, kPeriod),
		minK:    NewRollingExtremum(false, false, kPeriod),
		dK:      NewRollingStat(statMean, dPeriod),
	}
}

func (k *Stochastic) MinPeriods() int { return k.kPeriod }

func (k *Stochastic) Outputs() []string { return []string{"k", "d"} }

func (k *Stochastic) Initialize(history []Sample) State {
	st := &stochasticState{
		highs: k.maxK.Initialize(nil),
		lows:  k.minK.Initialize(nil),
		d:     k.dK.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*stochasticState)
	}
	return st
}

func (k *Stochastic) Step(st State, x Sample) (State, []float64) {
	s := st.(*stochasticState).Clone().(*stochasticState)
	var hi, lo []float64
	s.highs, hi = k.maxK.Step(s.highs, Sample{Value: x.High})
	s.lows, lo = k.minK.Step(s.lows, Sample{Value: x.Low})
	if math.IsNaN(hi[0]) || math.IsNaN(lo[0]) {
		return s, []float64{math.NaN(), math.NaN()}
	}
	denom := hi[0] - lo[0]
	kVal := 50.0
	if denom != 0 {
		kVal = 100 * (x.Close - lo[0]) / denom
	}
	var d []float64
	s.d, d = k.dK.Step(s.d, Sample{Value: kVal})
	return s, []float64{kVal, d[0]}
}

// adxState threads Wilder averages of TR, +DM, -DM, and DX.
type adxState struct {
	prevHigh  float64
	prevLow   float64
	prevClose float64
	hasPrev   bool
	trRMA     State
	plusRMA   State
	minusRMA  State
	dxRMA     State
}

func (s *adxState) Clone() State {
	cp := *s
	cp.trRMA = s.trRMA.Clone()
	cp.plusRMA = s.plusRMA.Clone()
	cp.minusRMA = s.minusRMA.Clone()
	cp.dxRMA = s.dxRMA.Clone()
	return &cp
}

// ADX emits adx, plus_di, and minus_di using Wilder smoothing of the
// true range and directional movements, with ADX the Wilder average
// of DX.
type ADX struct {
	period int
	rma    *RMA
}

// NewADX creates an ADX kernel.
func NewADX(period int) *ADX { return &ADX{period: period, rma: NewRMA(period)} }

func (k *ADX) MinPeriods() int { return k.period + 1 }

func (k *ADX) Outputs() []string { return []string{"adx", "plus_di", "minus_di"} }

func (k *ADX) Initialize(history []Sample) State {
	st := &adxState{
		trRMA:    k.rma.Initialize(nil),
		plusRMA:  k.rma.Initialize(nil),
		minusRMA: k.rma.Initialize(nil),
		dxRMA:    k.rma.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*adxState)
	}
	return st
}

func (k *ADX) Step(st State, x Sample) (State, []float64) {
	s := st.(*adxState).Clone().(*adxState)
	if !s.hasPrev {
		s.prevHigh, s.prevLow, s.prevClose = x.High, x.Low, x.Close
		s.hasPrev = true
		return s, []float64{math.NaN(), math.NaN(), math.NaN()}
	}
	upMove := x.High - s.prevHigh
	downMove := s.prevLow - x.Low
	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	tr := trueRangeValue(x.High, x.Low, s.prevClose, true)
	s.prevHigh, s.prevLow, s.prevClose = x.High, x.Low, x.Close

	var trAvg, plusAvg, minusAvg []float64
	s.trRMA, trAvg = k.rma.Step(s.trRMA, Sample{Value: tr})
	s.plusRMA, plusAvg = k.rma.Step(s.plusRMA, Sample{Value: plusDM})
	s.minusRMA, minusAvg = k.rma.Step(s.minusRMA, Sample{Value: minusDM})
	if math.IsNaN(trAvg[0]) {
		return s, []float64{math.NaN(), math.NaN(), math.NaN()}
	}

	plusDI, minusDI := 0.0, 0.0
	if trAvg[0] != 0 {
		plusDI = 100 * plusAvg[0] / trAvg[0]
		minusDI = 100 * minusAvg[0] / trAvg[0]
	}
	dx := 0.0
	if plusDI+minusDI != 0 {
		dx = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}
	var adx []float64
	s.dxRMA, adx = k.rma.Step(s.dxRMA, Sample{Value: dx})
	return s, []float64{adx[0], plusDI, minusDI}
}

// vortexState threads the prior bar and the three rolling sums.
type vortexState struct {
	prevHigh  float64
	prevLow   float64
	prevClose float64
	hasPrev   bool
	vmPlus    State
	vmMinus   State
	trSum     State
}

func (s *vortexState) Clone() State {
	cp := *s
	cp.vmPlus = s.vmPlus.Clone()
	cp.vmMinus = s.vmMinus.Clone()
	cp.trSum = s.trSum.Clone()
	return &cp
}

// Vortex emits VI+ and VI-: rolling sums of |high - prev low| and
// |low - prev high| over the true-range sum.
type Vortex struct {
	period int
	sum    *RollingStat
}

// NewVortex creates a vortex indicator kernel.
func NewVortex(period int) *Vortex {
	return &Vortex{period: period, sum: NewRollingStat(statSum, period)}
}

func (k *Vortex) MinPeriods() int { return k.period + 1 }

func (k *Vortex) Outputs() []string { return []string{"plus", "minus"} }

func (k *Vortex) Initialize(history []Sample) State {
	st := &vortexState{
		vmPlus:  k.sum.Initialize(nil),
		vmMinus: k.sum.Initialize(nil),
		trSum:   k.sum.Initialize(nil),
	}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*vortexState)
	}
	return st
}

func (k *Vortex) Step(st State, x Sample) (State, []float64) {
	s := st.(*vortexState).Clone().(*vortexState)
	if !s.hasPrev {
		s.prevHigh, s.prevLow, s.prevClose = x.High, x.Low, x.Close
		s.hasPrev = true
		return s, []float64{math.NaN(), math.NaN()}
	}
	vmPlus := math.Abs(x.High - s.prevLow)
	vmMinus := math.Abs(x.Low - s.prevHigh)
	tr := trueRangeValue(x.High, x.Low, s.prevClose, true)
	s.prevHigh, s.prevLow, s.prevClose = x.High, x.Low, x.Close

	var sumP, sumM, sumTR []float64
	s.vmPlus, sumP = k.sum.Step(s.vmPlus, Sample{Value: vmPlus})
	s.vmMinus, sumM = k.sum.Step(s.vmMinus, Sample{Value: vmMinus})
	s.trSum, sumTR = k.sum.Step(s.trSum, Sample{Value: tr})
	if math.IsNaN(sumTR[0]) {
		return s, []float64{math.NaN(), math.NaN()}
	}
	if sumTR[0] == 0 {
		return s, []float64{0, 0}
	}
	return s, []float64{sumP[0] / sumTR[0], sumM[0] / sumTR[0]}
}

// mfiState keeps the typical-price anchor and the split money-flow
// windows.
type mfiState struct {
	prevTP  float64
	hasPrev bool
	posFlow []float64
	negFlow []float64
}

func (s *mfiState) Clone() State {
	cp := *s
	cp.posFlow = append([]float64(nil), s.posFlow...)
	cp.negFlow = append([]float64(nil), s.negFlow...)
	return &cp
}

// MFI is the Money Flow Index over typical-price money flow. Zero
// negative flow yields 100.
type MFI struct {
	period int
}

// NewMFI creates an MFI kernel.
func NewMFI(period int) *MFI { return &MFI{period: period} }

func (k *MFI) MinPeriods() int { return k.period + 1 }

func (k *MFI) Outputs() []string { return []string{"result"} }

func (k *MFI) Initialize(history []Sample) State {
	st := &mfiState{}
	for _, x := range history {
		next, _ := k.Step(st, x)
		st = next.(*mfiState)
	}
	return st
}

func (k *MFI) Step(st State, x Sample) (State, []float64) {
	s := st.(*mfiState).Clone().(*mfiState)
	tp := (x.High + x.Low + x.Close) / 3
	if !s.hasPrev {
		s.prevTP, s.hasPrev = tp, true
		return s, []float64{math.NaN()}
	}
	mf := tp * x.Volume
	pos, neg := 0.0, 0.0
	if tp > s.prevTP {
		pos = mf
	} else if tp < s.prevTP {
		neg = mf
	}
	s.prevTP = tp
	s.posFlow = append(s.posFlow, pos)
	s.negFlow = append(s.negFlow, neg)
	if len(s.posFlow) > k.period {
		s.posFlow = s.posFlow[1:]
		s.negFlow = s.negFlow[1:]
	}
	if len(s.posFlow) < k.period {
		return s, []float64{math.NaN()}
	}
	var sumPos, sumNeg float64
	for i := range s.posFlow {
		sumPos += s.posFlow[i]
		sumNeg += s.negFlow[i]
	}
	if sumNeg == 0 {
		return s, []float64{100}
	}
	ratio := sumPos / sumNeg
	return s, []float64{100 - 100/(1+ratio)}
}
