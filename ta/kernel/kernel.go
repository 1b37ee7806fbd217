// Package kernel implements the initialize/step state machines that
// unify batch and streaming indicator execution. A kernel consumes
// one Sample per bar and emits one value per declared output; warmup
// indices emit NaN and are masked false downstream.
//
// File organization:
//   - kernel.go: protocol, Sample, Params, factory dispatch
//   - rolling.go: sliding-window kernels (sum/mean/std/max/min/...)
//   - ewma.go: EMA, RMA, WMA
//   - elementwise.go: diff, shift, cumsum, sign, abs, true range, ...
//   - momentum.go: RSI, ROC, CMO, CCI, Williams %R, AO, Coppock,
//     Stochastic, ADX, Vortex, MFI
//   - trend.go: MACD, PSAR, Supertrend, Ichimoku, Fisher, Elder Ray
//   - volatility.go: ATR, Bollinger, Keltner, Donchian
//   - volume.go: OBV, VWAP, CMF, Klinger
//   - pattern.go: swing points, Fibonacci retracement
//   - events.go: crossings, rising/falling, channel entries/exits
package kernel

import (
	"fmt"
	"math"
)

// Sample is one input bar. Single-input kernels read Value; two- and
// three-input event kernels additionally read Other and Extra; bar
// kernels read the OHLCV fields.
type Sample struct {
	Value float64
	Other float64
	Extra float64

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// State is an opaque, cloneable kernel state. Clone must produce a
// fully detached copy so the streaming backend can snapshot and
// replay.
type State interface {
	Clone() State
}

// Kernel is the single abstraction shared by batch and streaming
// execution.
type Kernel interface {
	// Initialize consumes zero or more prior samples to establish
	// warmup state.
	Initialize(history []Sample) State
	// Step consumes one sample and returns the new state plus one
	// value per output. Warmup outputs are NaN.
	Step(st State, x Sample) (State, []float64)
	// MinPeriods returns the number of inputs before the first
	// defined value of the primary output.
	MinPeriods() int
	// Outputs returns the output names; single-output kernels
	// return ["result"].
	Outputs() []string
}

// Params carries resolved indicator parameters.
type Params map[string]interface{}

// Int returns an integer parameter, falling back to def.
func (p Params) Int(name string, def int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Float returns a float parameter, falling back to def.
func (p Params) Float(name string, def float64) float64 {
	switch v := p[name].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// Str returns a string parameter, falling back to def.
func (p Params) Str(name, def string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return def
}

// Bool returns a bool parameter, falling back to def.
func (p Params) Bool(name string, def bool) bool {
	if v, ok := p[name].(bool); ok {
		return v
	}
	return def
}

// New constructs the kernel for a kernel id with resolved parameters.
// Unknown ids are a programming error surfaced to the caller.
func New(id string, p Params) (Kernel, error) {
	switch id {
	case "select":
		return NewPassthrough(), nil
	case "rolling_sum":
		return NewRollingStat(statSum, p.Int("period", 14)), nil
	case "rolling_mean":
		return NewRollingStat(statMean, p.Int("period", 14)), nil
	case "rolling_std":
		return NewRollingStat(statStd, p.Int("period", 20)), nil
	case "rolling_max":
		return NewRollingExtremum(true, false, p.Int("period", 14)), nil
	case "rolling_min":
		return NewRollingExtremum(false, false, p.Int("period", 14)), nil
	case "rolling_argmax":
		return NewRollingExtremum(true, true, p.Int("period", 14)), nil
	case "rolling_argmin":
		return NewRollingExtremum(false, true, p.Int("period", 14)), nil
	case "rolling_median":
		return NewRollingMedian(p.Int("period", 14)), nil
	case "ema":
		return NewEMA(p.Int("period", 14)), nil
	case "rma":
		return NewRMA(p.Int("period", 14)), nil
	case "wma":
		return NewWMA(p.Int("period", 14)), nil
	case "hma":
		return NewHMA(p.Int("period", 14)), nil
	case "diff":
		return NewDiff(), nil
	case "shift":
		return NewShift(p.Int("periods", 1)), nil
	case "cumsum":
		return NewCumSum(), nil
	case "sign":
		return NewElementFunc("sign", signOf), nil
	case "abs":
		return NewElementFunc("abs", math.Abs), nil
	case "neg":
		return NewElementFunc("neg", func(x float64) float64 { return -x }), nil
	case "pos":
		return NewElementFunc("pos", func(x float64) float64 { return x }), nil
	case "true_range":
		return NewTrueRange(), nil
	case "typical_price":
		return NewTypicalPrice(), nil
	case "rsi":
		return NewRSI(p.Int("period", 14), p.Bool("zero_loss_hundred", false)), nil
	case "roc":
		return NewROC(p.Int("period", 12)), nil
	case "cmo":
		return NewCMO(p.Int("period", 14)), nil
	case "cci":
		return NewCCI(p.Int("period", 20)), nil
	case "williams_r":
		return NewWilliamsR(p.Int("period", 14)), nil
	case "ao":
		return NewAO(p.Int("fast_period", 5), p.Int("slow_period", 34)), nil
	case "coppock":
		return NewCoppock(p.Int("wma_period", 10), p.Int("roc_long", 14), p.Int("roc_short", 11)), nil
	case "stochastic":
		return NewStochastic(p.Int("k_period", 14), p.Int("d_period", 3)), nil
	case "adx":
		return NewADX(p.Int("period", 14)), nil
	case "vortex":
		return NewVortex(p.Int("period", 14)), nil
	case "mfi":
		return NewMFI(p.Int("period", 14)), nil
	case "macd":
		return NewMACD(p.Int("fast_period", 12), p.Int("slow_period", 26), p.Int("signal_period", 9)), nil
	case "psar":
		return NewPSAR(p.Float("af_start", 0.02), p.Float("af_increment", 0.02), p.Float("af_max", 0.2)), nil
	case "supertrend":
		return NewSupertrend(p.Int("period", 10), p.Float("multiplier", 3.0)), nil
	case "ichimoku":
		return NewIchimoku(p.Int("tenkan_period", 9), p.Int("kijun_period", 26), p.Int("span_b_period", 52), p.Int("displacement", 26)), nil
	case "fisher":
		return NewFisher(p.Int("period", 9)), nil
	case "elder_ray":
		return NewElderRay(p.Int("period", 13)), nil
	case "atr":
		return NewATR(p.Int("period", 14)), nil
	case "bbands":
		return NewBollinger(p.Int("period", 20), p.Float("std_dev", 2.0)), nil
	case "keltner":
		return NewKeltner(p.Int("ema_period", 20), p.Int("atr_period", 10), p.Float("multiplier", 2.0)), nil
	case "donchian":
		return NewDonchian(p.Int("period", 20)), nil
	case "obv":
		return NewOBV(), nil
	case "vwap":
		return NewVWAP(), nil
	case "cmf":
		return NewCMF(p.Int("period", 20)), nil
	case "klinger":
		return NewKlinger(p.Int("fast_period", 34), p.Int("slow_period", 55), p.Int("signal_period", 13)), nil
	case "swing_points":
		return NewSwingPoints(p.Int("left", 2), p.Int("right", 2), p.Str("return_mode", "flags"), p.Bool("allow_equal_extremes", false)), nil
	case "fib_retracement":
		return NewFibRetracement(p.Int("left", 2), p.Int("right", 2)), nil
	case "crossup":
		return NewCross(crossUp), nil
	case "crossdown":
		return NewCross(crossDown), nil
	case "cross":
		return NewCross(crossAny), nil
	case "rising":
		return NewTrendEvent(trendRising, 0), nil
	case "falling":
		return NewTrendEvent(trendFalling, 0), nil
	case "rising_pct":
		return NewTrendEvent(trendRisingPct, p.Float("pct", 5)), nil
	case "falling_pct":
		return NewTrendEvent(trendFallingPct, p.Float("pct", 5)), nil
	case "in_channel":
		return NewChannelEvent(channelIn), nil
	case "out":
		return NewChannelEvent(channelOut), nil
	case "enter":
		return NewChannelEvent(channelEnter), nil
	case "exit":
		return NewChannelEvent(channelExit), nil
	}
	return nil, fmt.Errorf("unknown kernel id '%s'", id)
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func signOf(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
