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

// ticksFromDataset converts the ohlcv partition rows into ticks.
func ticksFromDataset(t *testing.T, ds *ta.Dataset) []Tick {
	t.Helper()
	key := ta.PartitionKey{Symbol: "X", Timeframe: "1h", Source: ta.SourceOHLCV}
	closeSeries, err := ds.Series(key, "close")
	require.NoError(t, err)

	ticks := make([]Tick, closeSeries.Len())
	for i := range ticks {
		fields := make(map[string]float64, 5)
		for _, field := range []string{"open", "high", "low", "close", "volume"} {
			s, err := ds.Series(key, field)
			require.NoError(t, err)
			fields[field] = s.Value(i)
		}
		ticks[i] = Tick{Timestamp: closeSeries.Timestamps()[i], Fields: fields}
	}
	return ticks
}

// assertParity checks that a fresh backend fed the dataset's rows
// reproduces the batch output bit for bit, masks included.
func assertParity(t *testing.T, text string, ds *ta.Dataset) {
	t.Helper()
	reg := registry.NewDefault()
	plan, err := Compile(text, reg, planner.DefaultOptions())
	require.NoError(t, err)

	batch, err := New(reg, Options{}).Evaluate(context.Background(), plan, ds, "X", "1h")
	require.NoError(t, err)

	backend, err := NewBackend(plan, reg, nil)
	require.NoError(t, err)

	for i, tick := range ticksFromDataset(t, ds) {
		got, err := backend.Step(tick)
		require.NoError(t, err)
		want := batch.Value(i)
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(got), "%s tick %d: batch NaN, stream %v", text, i, got)
			continue
		}
		assert.Equal(t, want, got, "%s tick %d", text, i)
	}
}

func TestBatchStreamParity(t *testing.T) {
	closes := rangeCloses(60)
	ds := closeDataset(t, closes)

	for _, text := range []string{
		"sma(close, 3)",
		"ema(close, 12)",
		"rsi(close, 14)",
		"macd(close, 12, 26, 9)",
		"macd(close, 12, 26, 9).signal",
		"macd(close, 12, 26, 9).histogram",
		"bbands(close, 20, 2.0).upper",
		"atr(14)",
		"stochastic(14, 3).k",
		"crossup(close, 30)",
		"sma(close, 5) > sma(close, 20)",
		"close * 2 - sma(close, 3)",
		"close.roc_2",
		"close.1h_ago",
	} {
		t.Run(text, func(t *testing.T) {
			assertParity(t, text, ds)
		})
	}
}

func TestParityOnNoisyData(t *testing.T) {
	// A deterministic pseudo-random walk.
	closes := make([]float64, 80)
	x := 100.0
	for i := range closes {
		x += math.Sin(float64(i)*1.7) * 3
		closes[i] = x
	}
	ds := closeDataset(t, closes)

	for _, text := range []string{
		"rsi(close, 14)",
		"supertrend(10, 3.0)",
		"psar(0.02, 0.02, 0.2)",
		"adx(14)",
		"donchian(20).middle",
		"mfi(14)",
	} {
		t.Run(text, func(t *testing.T) {
			assertParity(t, text, ds)
		})
	}
}

func TestStreamMissingFieldsPropagate(t *testing.T) {
	reg := registry.NewDefault()
	plan, err := Compile("sma(close, 2)", reg, planner.DefaultOptions())
	require.NoError(t, err)
	backend, err := NewBackend(plan, reg, nil)
	require.NoError(t, err)

	v, err := backend.Step(Tick{Timestamp: 0, Fields: map[string]float64{"close": 10}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v), "warmup")

	// A tick without close propagates NaN.
	v, err = backend.Step(Tick{Timestamp: hourMS, Fields: map[string]float64{"volume": 5}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}

func TestInitializeWarmsKernels(t *testing.T) {
	closes := rangeCloses(40)
	ds := closeDataset(t, closes)

	reg := registry.NewDefault()
	plan, err := Compile("sma(close, 3)", reg, planner.DefaultOptions())
	require.NoError(t, err)

	backend, err := NewBackend(plan, reg, nil)
	require.NoError(t, err)
	require.NoError(t, backend.Initialize(ds, "X", "1h"))

	// The next tick continues the warmed stream.
	v, err := backend.Step(Tick{
		Timestamp: int64(len(closes)) * hourMS,
		Fields:    map[string]float64{"close": 43},
	})
	require.NoError(t, err)
	assert.InDelta(t, (39.0+40.0+43.0)/3, v, 1e-12)
}

func TestSnapshotReplayIdempotence(t *testing.T) {
	closes := rangeCloses(50)
	ds := closeDataset(t, closes)
	ticks := ticksFromDataset(t, ds)

	reg := registry.NewDefault()
	plan, err := Compile("rsi(close, 14)", reg, planner.DefaultOptions())
	require.NoError(t, err)
	backend, err := NewBackend(plan, reg, nil)
	require.NoError(t, err)

	for _, tick := range ticks[:30] {
		_, err := backend.Step(tick)
		require.NoError(t, err)
	}
	snap := backend.Snapshot()

	// Replaying zero events leaves the snapshot equal to itself.
	none, err := backend.Replay(snap, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	// The live backend and a replay from the snapshot agree.
	var live []float64
	for _, tick := range ticks[30:] {
		v, err := backend.Step(tick)
		require.NoError(t, err)
		live = append(live, v)
	}
	replayed, err := backend.Replay(snap, ticks[30:])
	require.NoError(t, err)
	require.Len(t, replayed, len(live))
	for i := range live {
		assert.Equal(t, live[i], replayed[i], "tick %d", 30+i)
	}

	// Replay is repeatable: the snapshot was not consumed.
	again, err := backend.Replay(snap, ticks[30:])
	require.NoError(t, err)
	assert.Equal(t, replayed, again)
}

func TestSnapshotRestoreBranches(t *testing.T) {
	closes := rangeCloses(40)
	ds := closeDataset(t, closes)
	ticks := ticksFromDataset(t, ds)

	reg := registry.NewDefault()
	plan, err := Compile("ema(close, 10)", reg, planner.DefaultOptions())
	require.NoError(t, err)
	backend, err := NewBackend(plan, reg, nil)
	require.NoError(t, err)

	for _, tick := range ticks[:20] {
		_, err := backend.Step(tick)
		require.NoError(t, err)
	}
	snap := backend.Snapshot()

	branchA, err := backend.Step(Tick{Timestamp: ticks[20].Timestamp, Fields: map[string]float64{"close": 500}})
	require.NoError(t, err)

	backend.Restore(snap)
	branchB, err := backend.Step(Tick{Timestamp: ticks[20].Timestamp, Fields: map[string]float64{"close": 500}})
	require.NoError(t, err)
	assert.Equal(t, branchA, branchB, "restore rewinds to the snapshot point")
}

func TestAggregateParity(t *testing.T) {
	ds := closeDataset(t, []float64{10, 20, 30, 40})
	tradesKey := ta.PartitionKey{Symbol: "X", Timeframe: "1h", Source: ta.SourceTrades}
	amount := ta.MustSeries(hourlyAxis(4), []float64{5e5, 2e6, 5e5, 3e6}, "X", "1h")
	price := ta.MustSeries(hourlyAxis(4), []float64{100, 101, 102, 103}, "X", "1h")
	require.NoError(t, ds.AddSeries(tradesKey, "amount", amount))
	require.NoError(t, ds.AddSeries(tradesKey, "price", price))

	reg := registry.NewDefault()
	plan, err := Compile("trades.filter(amount > 1000000).count", reg, planner.DefaultOptions())
	require.NoError(t, err)

	batch, err := New(reg, Options{}).Evaluate(context.Background(), plan, ds, "X", "1h")
	require.NoError(t, err)

	backend, err := NewBackend(plan, reg, nil)
	require.NoError(t, err)
	amounts := []float64{5e5, 2e6, 5e5, 3e6}
	prices := []float64{100, 101, 102, 103}
	for i := range amounts {
		got, err := backend.Step(Tick{
			Timestamp: int64(i) * hourMS,
			Fields: map[string]float64{
				"trades.amount": amounts[i],
				"trades.price":  prices[i],
			},
		})
		require.NoError(t, err)
		assert.Equal(t, batch.Value(i), got, "tick %d", i)
	}
}
