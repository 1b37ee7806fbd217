package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeedsFromFirstInput(t *testing.T) {
	out := runBatch(NewEMA(3), valueSamples(10, 20, 30))
	assert.Equal(t, 10.0, out[0])
	alpha := 2.0 / 4.0
	want1 := alpha*20 + (1-alpha)*10
	assert.InDelta(t, want1, out[1], 1e-12)
	assert.InDelta(t, alpha*30+(1-alpha)*want1, out[2], 1e-12)
}

func TestRMASeedsFromSimpleMean(t *testing.T) {
	out := runBatch(NewRMA(3), valueSamples(3, 6, 9, 12))
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 6.0, out[2], 1e-12, "seed is the mean of the first period")
	assert.InDelta(t, (6.0*2+12)/3, out[3], 1e-12)
}

func TestWMAWeightsNewestHeaviest(t *testing.T) {
	out := runBatch(NewWMA(3), valueSamples(1, 2, 3))
	// (1*1 + 2*2 + 3*3) / 6
	assert.InDelta(t, 14.0/6.0, out[2], 1e-12)
}

func TestRSIConstantSeriesIsFifty(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 100
	}
	k := NewRSI(14, false)
	out := runBatch(k, valueSamples(vals...))
	assert.Equal(t, 15, k.MinPeriods())
	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(out[i]), "warmup index %d", i)
	}
	for i := 14; i < len(out); i++ {
		assert.Equal(t, 50.0, out[i], "index %d", i)
	}
}

func TestRSIZeroLossBranches(t *testing.T) {
	ascending := make([]float64, 20)
	for i := range ascending {
		ascending[i] = float64(i)
	}
	out := runBatch(NewRSI(14, false), valueSamples(ascending...))
	assert.Equal(t, 100.0, out[len(out)-1], "all gains, no losses")

	flat := make([]float64, 20)
	outHundred := runBatch(NewRSI(14, true), valueSamples(flat...))
	assert.Equal(t, 100.0, outHundred[len(outHundred)-1], "zero/zero toggle flips the branch")
}

func TestATRFirstBarUsesHighLow(t *testing.T) {
	high := []float64{12, 13, 14}
	low := []float64{8, 9, 10}
	closeVals := []float64{10, 11, 12}
	out := runBatch(NewATR(3), barSamples(high, low, closeVals))
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	// TRs: 4, 4, 4 -> seed mean 4.
	assert.InDelta(t, 4.0, out[2], 1e-12)
}

func TestTrueRangeAgainstPrevClose(t *testing.T) {
	out := runBatch(NewTrueRange(), barSamples(
		[]float64{12, 13},
		[]float64{8, 12},
		[]float64{10, 12.5},
	))
	assert.Equal(t, 4.0, out[0], "first bar falls back to high-low")
	// max(13-12, |13-10|, |12-10|) = 3.
	assert.Equal(t, 3.0, out[1])
}

func TestStochasticFlatWindowIsNeutral(t *testing.T) {
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	closeVals := make([]float64, n)
	for i := range high {
		high[i], low[i], closeVals[i] = 100, 100, 100
	}
	k := NewStochastic(14, 3)
	state := k.Initialize(nil)
	var vals []float64
	for _, x := range barSamples(high, low, closeVals) {
		state, vals = k.Step(state, x)
	}
	assert.Equal(t, 50.0, vals[0], "%K neutral on a flat window")
	assert.Equal(t, 50.0, vals[1])
}

func TestStochasticKRange(t *testing.T) {
	high := []float64{10, 12, 14, 16, 18}
	low := []float64{8, 9, 10, 11, 12}
	closeVals := []float64{9, 11, 13, 15, 18}
	k := NewStochastic(3, 2)
	state := k.Initialize(nil)
	var vals []float64
	for _, x := range barSamples(high, low, closeVals) {
		state, vals = k.Step(state, x)
	}
	// Close at the window high: %K = 100.
	assert.InDelta(t, 100.0, vals[0], 1e-9)
}

func TestPSARSeedAndFlip(t *testing.T) {
	k := NewPSAR(0.02, 0.02, 0.2)
	state := k.Initialize(nil)

	state, out := k.Step(state, Sample{High: 10, Low: 9, Close: 9.5})
	assert.Equal(t, 9.0, out[0], "seeded long with sar at the first low")
	assert.Equal(t, 1.0, out[1])

	// An uptrending bar advances the stop and keeps the trend.
	state, out = k.Step(state, Sample{High: 11, Low: 9.5, Close: 10.5})
	assert.Equal(t, 1.0, out[1])
	assert.Less(t, out[0], 9.5)

	// A collapse through the stop flips to short at the prior
	// extreme point.
	_, out = k.Step(state, Sample{High: 9.2, Low: 5, Close: 5.5})
	assert.Equal(t, -1.0, out[1])
	assert.Equal(t, 11.0, out[0], "flip resets the stop to the extreme point")
}

func TestMFIZeroNegativeFlow(t *testing.T) {
	n := 6
	high := make([]float64, n)
	low := make([]float64, n)
	closeVals := make([]float64, n)
	for i := range high {
		base := 100 + float64(i)
		high[i], low[i], closeVals[i] = base+1, base-1, base
	}
	samples := barSamples(high, low, closeVals)
	for i := range samples {
		samples[i].Volume = 1000
	}
	out := runBatch(NewMFI(4), samples)
	assert.True(t, math.IsNaN(out[3]))
	assert.Equal(t, 100.0, out[4], "monotone rise has zero negative flow")
}

func TestMACDConvergence(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	k := NewMACD(12, 26, 9)
	state := k.Initialize(nil)
	var macd40, macdLast, signalLast, histLast float64
	for i, x := range valueSamples(vals...) {
		var out []float64
		state, out = k.Step(state, x)
		if i == 40 {
			macd40 = out[0]
		}
		if i == len(vals)-1 {
			macdLast, signalLast, histLast = out[0], out[1], out[2]
		}
	}
	// A linear ramp converges the fast-slow spread towards
	// (slow-fast)/2 = 7 in magnitude.
	assert.InDelta(t, 6.43, math.Abs(macd40), 0.05)
	assert.InDelta(t, macdLast, signalLast, 0.15, "signal tracks the macd line")
	assert.InDelta(t, 0.0, histLast, 0.1, "histogram decays to zero")
}

func TestBollingerScenario(t *testing.T) {
	vals := make([]float64, 21)
	for i := 0; i < 20; i++ {
		vals[i] = 10
	}
	vals[20] = 20
	k := NewBollinger(20, 2)
	state := k.Initialize(nil)
	var out []float64
	for _, x := range valueSamples(vals...) {
		state, out = k.Step(state, x)
	}
	assert.InDelta(t, 10.5, out[1], 1e-9)
	assert.InDelta(t, 10.5+2*math.Sqrt(4.75), out[0], 1e-9)
	assert.InDelta(t, 10.5-2*math.Sqrt(4.75), out[2], 1e-9)
}

func TestDonchianChannels(t *testing.T) {
	high := []float64{10, 12, 11, 14}
	low := []float64{5, 6, 4, 7}
	out := make([][]float64, 0, 4)
	k := NewDonchian(3)
	state := k.Initialize(nil)
	for _, x := range barSamples(high, low, high) {
		var vals []float64
		state, vals = k.Step(state, x)
		out = append(out, vals)
	}
	assert.Equal(t, 12.0, out[2][0])
	assert.Equal(t, 4.0, out[2][2])
	assert.Equal(t, 8.0, out[2][1])
}

func TestOBVAccumulation(t *testing.T) {
	samples := barSamples(
		[]float64{1, 1, 1, 1},
		[]float64{1, 1, 1, 1},
		[]float64{10, 11, 9, 9},
	)
	vols := []float64{100, 200, 300, 400}
	for i := range samples {
		samples[i].Volume = vols[i]
	}
	out := runBatch(NewOBV(), samples)
	assert.Equal(t, []float64{0, 200, -100, -100}, out)
}

func TestVWAPCumulative(t *testing.T) {
	samples := barSamples(
		[]float64{12, 14},
		[]float64{8, 10},
		[]float64{10, 12},
	)
	samples[0].Volume = 10
	samples[1].Volume = 30
	out := runBatch(NewVWAP(), samples)
	assert.InDelta(t, 10.0, out[0], 1e-12)
	assert.InDelta(t, (10.0*10+12.0*30)/40, out[1], 1e-12)
}

func TestUnknownKernelID(t *testing.T) {
	_, err := New("nope", Params{})
	require.Error(t, err)
}

func TestFactoryCoversCatalogIDs(t *testing.T) {
	for _, id := range []string{
		"select", "rolling_sum", "rolling_mean", "rolling_std", "rolling_max",
		"rolling_min", "rolling_argmax", "rolling_argmin", "rolling_median",
		"ema", "rma", "wma", "hma", "diff", "shift", "cumsum", "sign", "abs",
		"neg", "pos", "true_range", "typical_price", "rsi", "roc", "cmo", "cci", "williams_r",
		"ao", "coppock", "stochastic", "adx", "vortex", "mfi", "macd", "psar",
		"supertrend", "ichimoku", "fisher", "elder_ray", "atr", "bbands",
		"keltner", "donchian", "obv", "vwap", "cmf", "klinger", "swing_points",
		"fib_retracement", "crossup", "crossdown", "cross", "rising", "falling",
		"rising_pct", "falling_pct", "in_channel", "out", "enter", "exit",
	} {
		k, err := New(id, Params{})
		require.NoError(t, err, id)
		require.NotEmpty(t, k.Outputs(), id)
		assert.GreaterOrEqual(t, k.MinPeriods(), 1, id)
	}
}
