package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/planner"
	"github.com/laakhay/ta/ta/registry"
)

const hourMS = int64(3_600_000)

func hourlyAxis(n int) []ta.Timestamp {
	out := make([]ta.Timestamp, n)
	for i := range out {
		out[i] = int64(i) * hourMS
	}
	return out
}

// closeDataset builds a single ohlcv partition whose open/high/low
// all mirror the close values.
func closeDataset(t *testing.T, closes []float64) *ta.Dataset {
	t.Helper()
	ds := ta.NewDataset()
	volume := make([]float64, len(closes))
	for i := range volume {
		volume[i] = 1000
	}
	require.NoError(t, ds.AddOHLCV("X", "1h", hourlyAxis(len(closes)), closes, closes, closes, closes, volume))
	return ds
}

func evalText(t *testing.T, text string, ds *ta.Dataset) ta.Series {
	t.Helper()
	reg := registry.NewDefault()
	plan, err := Compile(text, reg, planner.DefaultOptions())
	require.NoError(t, err)
	result, err := New(reg, Options{}).Evaluate(context.Background(), plan, ds, "X", "1h")
	require.NoError(t, err)
	return result
}

func rangeCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestScenarioSMA(t *testing.T) {
	result := evalText(t, "sma(close, 3)", closeDataset(t, []float64{1, 2, 3, 4, 5}))

	require.Equal(t, 5, result.Len())
	assert.Equal(t, []bool{false, false, true, true, true}, result.Mask())
	assert.True(t, math.IsNaN(result.Value(0)))
	assert.True(t, math.IsNaN(result.Value(1)))
	assert.Equal(t, 2.0, result.Value(2))
	assert.Equal(t, 3.0, result.Value(3))
	assert.Equal(t, 4.0, result.Value(4))
}

func TestScenarioRSIConstant(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	result := evalText(t, "rsi(close, 14)", closeDataset(t, closes))

	for i := 0; i < result.Len(); i++ {
		if result.Defined(i) {
			assert.Equal(t, 50.0, result.Value(i), "index %d", i)
		}
	}
	assert.False(t, result.Defined(13))
	assert.True(t, result.Defined(14), "first defined index follows warmup")
}

func TestScenarioMACD(t *testing.T) {
	ds := closeDataset(t, rangeCloses(60))

	macdLine := evalText(t, "macd(close, 12, 26, 9)", ds)
	signal := evalText(t, "macd(close, 12, 26, 9).signal", ds)
	histogram := evalText(t, "macd(close, 12, 26, 9).histogram", ds)

	// A monotone-linear input converges the fast-slow spread to a
	// constant of magnitude (slow-fast)/2 = 7.
	assert.InDelta(t, 7.0, math.Abs(macdLine.Value(40)), 0.6)
	assert.InDelta(t, macdLine.Value(48), signal.Value(48), 0.15)
	assert.InDelta(t, 0.0, histogram.Value(59), 0.1)
	assert.False(t, macdLine.Defined(20), "warmup masked before the slow period")
}

func TestScenarioBollinger(t *testing.T) {
	closes := make([]float64, 21)
	for i := 0; i < 20; i++ {
		closes[i] = 10
	}
	closes[20] = 20
	ds := closeDataset(t, closes)

	mean := evalText(t, "bbands(close, 20, 2.0).middle", ds)
	upper := evalText(t, "bbands(close, 20, 2.0).upper", ds)

	last := mean.Len() - 1
	assert.InDelta(t, 10.5, mean.Value(last), 1e-9)
	std := math.Sqrt((19*0.25 + 90.25) / 20)
	assert.InDelta(t, 10.5+2*std, upper.Value(last), 1e-9)
	assert.InDelta(t, 14.858, upper.Value(last), 1e-2)
}

func TestScenarioCrossup(t *testing.T) {
	result := evalText(t, "crossup(close, 20)", closeDataset(t, []float64{10, 15, 25, 30}))
	assert.Equal(t, []float64{0, 0, 1, 0}, result.Values())
	assert.Equal(t, []bool{true, true, true, true}, result.Mask())
}

func TestCrossSymmetry(t *testing.T) {
	closes := []float64{10, 25, 15, 30, 5, 40}
	ds := closeDataset(t, closes)
	up := evalText(t, "crossup(close, 20)", ds)
	down := evalText(t, "crossdown(close, 20)", ds)
	both := evalText(t, "cross(close, 20)", ds)

	for i := 0; i < both.Len(); i++ {
		either := up.Value(i) != 0 || down.Value(i) != 0
		assert.Equal(t, either, both.Value(i) != 0, "index %d", i)
	}
}

func TestExpressionArithmetic(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30})
	result := evalText(t, "(close + high) / 2", ds)
	assert.Equal(t, []float64{10, 20, 30}, result.Values())

	result = evalText(t, "close * 2 - 5", ds)
	assert.Equal(t, []float64{15, 35, 55}, result.Values())
}

func TestComparisonProducesFlags(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30})
	result := evalText(t, "close > 15", ds)
	assert.Equal(t, []float64{0, 1, 1}, result.Values())
}

func TestPartitionSelection(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30, 40})
	volume := ta.MustSeries(hourlyAxis(4), []float64{1e6, 2e6, 3e6, 4e6}, "X", "1h")
	amount := ta.MustSeries(hourlyAxis(4), []float64{5e5, 2e6, 5e5, 3e6}, "X", "1h")
	tradesKey := ta.PartitionKey{Symbol: "X", Timeframe: "1h", Source: ta.SourceTrades}
	require.NoError(t, ds.AddSeries(tradesKey, "volume", volume))
	require.NoError(t, ds.AddSeries(tradesKey, "amount", amount))

	// ohlcv-only expressions resolve against the ohlcv partition.
	result := evalText(t, "sma(close, 2)", ds)
	assert.Equal(t, 4, result.Len())

	// trades references resolve against the trades partition.
	result = evalText(t, "trades.volume", ds)
	assert.Equal(t, 1e6, result.Value(0))

	// A missing partition fails with PartitionMissing.
	reg := registry.NewDefault()
	plan, err := Compile("orderbook.spread > 10", reg, planner.DefaultOptions())
	require.NoError(t, err)
	_, err = New(reg, Options{}).Evaluate(context.Background(), plan, ds, "X", "1h")
	var pm *ta.PartitionMissingError
	require.ErrorAs(t, err, &pm)
	assert.Equal(t, "orderbook", pm.Source)
}

func TestFilterAndAggregate(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30, 40})
	tradesKey := ta.PartitionKey{Symbol: "X", Timeframe: "1h", Source: ta.SourceTrades}
	amount := ta.MustSeries(hourlyAxis(4), []float64{5e5, 2e6, 5e5, 3e6}, "X", "1h")
	price := ta.MustSeries(hourlyAxis(4), []float64{100, 101, 102, 103}, "X", "1h")
	require.NoError(t, ds.AddSeries(tradesKey, "amount", amount))
	require.NoError(t, ds.AddSeries(tradesKey, "price", price))

	// Running count of rows passing the filter.
	result := evalText(t, "trades.filter(amount > 1000000).count", ds)
	assert.Equal(t, []float64{0, 1, 1, 2}, result.Values())

	// Running sum over the amount field.
	result = evalText(t, "trades.sum(amount)", ds)
	assert.Equal(t, []float64{5e5, 2.5e6, 3e6, 6e6}, result.Values())

	// Filter then aggregate a field.
	result = evalText(t, "trades.filter(amount > 1000000).sum(amount)", ds)
	assert.False(t, result.Defined(0))
	assert.Equal(t, 2e6, result.Value(1))
	assert.Equal(t, 5e6, result.Value(3))
}

func TestTimeShift(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30, 40})

	ago := evalText(t, "close.1h_ago", ds)
	assert.False(t, ago.Defined(0))
	assert.Equal(t, []float64{10, 20, 30}, ago.Values()[1:])

	change := evalText(t, "close.change_2h", ds)
	assert.False(t, change.Defined(1))
	assert.Equal(t, 20.0, change.Value(2))

	pct := evalText(t, "close.change_pct_1h", ds)
	assert.InDelta(t, 100.0, pct.Value(1), 1e-9)

	roc := evalText(t, "close.roc_2", ds)
	assert.InDelta(t, 200.0, roc.Value(2), 1e-9)
}

func TestShiftRoundTrip(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30, 40, 50})
	shifted := evalText(t, "shift(shift(close, 1), 1)", ds)
	direct := evalText(t, "shift(close, 2)", ds)
	for i := 0; i < shifted.Len(); i++ {
		if shifted.Defined(i) && direct.Defined(i) {
			assert.Equal(t, direct.Value(i), shifted.Value(i), "index %d", i)
		}
	}
	assert.Equal(t, 10.0, shifted.Value(2))
}

func TestEvaluateAllExposesIntermediates(t *testing.T) {
	reg := registry.NewDefault()
	plan, err := Compile("sma(close, 2) + 1", reg, planner.DefaultOptions())
	require.NoError(t, err)
	ds := closeDataset(t, []float64{10, 20, 30})

	root, all, err := New(reg, Options{}).EvaluateAll(context.Background(), plan, ds, "X", "1h")
	require.NoError(t, err)
	assert.Equal(t, len(plan.TopoOrder), len(all))
	assert.Equal(t, root.Values(), all[plan.RootID].Values())
}

func TestCancellation(t *testing.T) {
	reg := registry.NewDefault()
	plan, err := Compile("sma(close, 2)", reg, planner.DefaultOptions())
	require.NoError(t, err)
	ds := closeDataset(t, []float64{10, 20, 30})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(reg, Options{}).Evaluate(ctx, plan, ds, "X", "1h")
	assert.ErrorIs(t, err, ta.ErrCancelled)
}

func TestSymbolMetadataInheritance(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30})
	result := evalText(t, "sma(close, 2) * 2", ds)
	assert.Equal(t, "X", result.Symbol())
	assert.Equal(t, "1h", result.Timeframe())
}

func TestIchimokuChikouLooksForward(t *testing.T) {
	closes := rangeCloses(80)
	ds := closeDataset(t, closes)
	chikou := evalText(t, "ichimoku(9, 26, 52, 26).chikou_span", ds)

	assert.Equal(t, closes[26], chikou.Value(0), "value at t is close at t+26")
	assert.True(t, chikou.Defined(53))
	assert.False(t, chikou.Defined(54), "no future close to reference")
}
