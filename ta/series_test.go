package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourly(n int) []Timestamp {
	out := make([]Timestamp, n)
	for i := range out {
		out[i] = int64(i) * 3_600_000
	}
	return out
}

func TestNewSeriesInvariants(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []Timestamp
		values     []float64
		mask       []bool
		wantErr    bool
	}{
		{
			name:       "valid",
			timestamps: []Timestamp{1, 2, 3},
			values:     []float64{1, 2, 3},
		},
		{
			name:       "length mismatch",
			timestamps: []Timestamp{1, 2},
			values:     []float64{1},
			wantErr:    true,
		},
		{
			name:       "unsorted timestamps",
			timestamps: []Timestamp{2, 1},
			values:     []float64{1, 2},
			wantErr:    true,
		},
		{
			name:       "duplicate timestamps",
			timestamps: []Timestamp{1, 1},
			values:     []float64{1, 2},
			wantErr:    true,
		},
		{
			name:       "mask length mismatch",
			timestamps: []Timestamp{1, 2},
			values:     []float64{1, 2},
			mask:       []bool{true},
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMaskedSeries(tt.timestamps, tt.values, tt.mask, "X", "1h")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaskNaNLockstep(t *testing.T) {
	s, err := NewMaskedSeries([]Timestamp{1, 2, 3}, []float64{1, math.NaN(), 3}, []bool{true, true, false}, "X", "1h")
	require.NoError(t, err)

	for i := 0; i < s.Len(); i++ {
		assert.Equal(t, s.Defined(i), !math.IsNaN(s.Value(i)), "index %d", i)
	}
	assert.True(t, s.Defined(0))
	assert.False(t, s.Defined(1), "NaN value must be masked false")
	assert.False(t, s.Defined(2), "mask-false value must read NaN")
}

func TestSliceByTime(t *testing.T) {
	s := MustSeries(hourly(10), []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, "X", "1h")

	sub, err := s.SliceByTime(2*3_600_000, 5*3_600_000)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Len())
	assert.Equal(t, 2.0, sub.Value(0))
	assert.Equal(t, 5.0, sub.Value(3))

	_, err = s.SliceByTime(5, 4)
	assert.Error(t, err)
}

func TestBinaryOpElementwise(t *testing.T) {
	a := MustSeries(hourly(3), []float64{1, 2, 3}, "X", "1h")
	b := MustSeries(hourly(3), []float64{10, 20, 30}, "X", "1h")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, sum.Values())
	assert.Equal(t, "X", sum.Symbol())
	assert.Equal(t, "1h", sum.Timeframe())
}

func TestScalarBroadcast(t *testing.T) {
	a := MustSeries(hourly(3), []float64{1, 2, 3}, "X", "1h")

	out, err := BinaryOp(OpMul, a, NewScalarSeries(2))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, out.Values())
	assert.Equal(t, "X", out.Symbol())

	// Scalar on the left adopts the right axis.
	out, err = BinaryOp(OpSub, NewScalarSeries(10), a)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 8, 7}, out.Values())
}

func TestMetadataMismatch(t *testing.T) {
	a := MustSeries(hourly(2), []float64{1, 2}, "X", "1h")
	b := MustSeries(hourly(2), []float64{1, 2}, "Y", "1h")
	c := MustSeries(hourly(2), []float64{1, 2}, "X", "4h")

	_, err := a.Add(b)
	var mm *MetadataMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "symbol", mm.Axis)

	_, err = a.Add(c)
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "timeframe", mm.Axis)
}

func TestDivisionByZeroYieldsNaN(t *testing.T) {
	a := MustSeries(hourly(3), []float64{1, 2, 3}, "X", "1h")
	b := MustSeries(hourly(3), []float64{1, 0, 3}, "X", "1h")

	out, err := a.Div(b)
	require.NoError(t, err)
	assert.True(t, out.Defined(0))
	assert.False(t, out.Defined(1))
	assert.True(t, math.IsNaN(out.Value(1)))
	assert.True(t, out.Defined(2))

	mod, err := BinaryOp(OpMod, a, b)
	require.NoError(t, err)
	assert.False(t, mod.Defined(1))
}

func TestAvailabilityPropagation(t *testing.T) {
	a, err := NewMaskedSeries(hourly(3), []float64{1, 2, 3}, []bool{true, false, true}, "X", "1h")
	require.NoError(t, err)
	b := MustSeries(hourly(3), []float64{1, 1, 1}, "X", "1h")

	out, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, out.Defined(0))
	assert.False(t, out.Defined(1))
	assert.True(t, out.Defined(2))
}

func TestAlignInner(t *testing.T) {
	a := MustSeries([]Timestamp{1, 2, 3, 5}, []float64{1, 2, 3, 5}, "X", "1h")
	b := MustSeries([]Timestamp{2, 3, 4, 5}, []float64{20, 30, 40, 50}, "X", "1h")

	left, right, err := Align(a, b, AlignInner, FillPolicy{Kind: FillNone})
	require.NoError(t, err)
	assert.Equal(t, []Timestamp{2, 3, 5}, left.Timestamps())
	assert.Equal(t, []float64{2, 3, 5}, left.Values())
	assert.Equal(t, []float64{20, 30, 50}, right.Values())
}

func TestAlignOuterFill(t *testing.T) {
	a := MustSeries([]Timestamp{1, 3}, []float64{1, 3}, "X", "1h")
	b := MustSeries([]Timestamp{1, 2, 3}, []float64{10, 20, 30}, "X", "1h")

	left, _, err := Align(a, b, AlignOuter, FillPolicy{Kind: FillNone})
	require.NoError(t, err)
	assert.Equal(t, 3, left.Len())
	assert.False(t, left.Defined(1), "gap with no fill is unavailable")

	left, _, err = Align(a, b, AlignOuter, FillPolicy{Kind: FillForward})
	require.NoError(t, err)
	assert.True(t, left.Defined(1))
	assert.Equal(t, 1.0, left.Value(1), "forward fill carries the last defined value")

	left, _, err = Align(a, b, AlignOuter, FillPolicy{Kind: FillValue, Value: -1})
	require.NoError(t, err)
	assert.Equal(t, -1.0, left.Value(1))
}

func TestComparisonAndLogicOps(t *testing.T) {
	a := MustSeries(hourly(3), []float64{1, 5, 3}, "X", "1h")
	b := MustSeries(hourly(3), []float64{2, 2, 3}, "X", "1h")

	gt, err := BinaryOp(OpGt, a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, gt.Values())

	ge, err := BinaryOp(OpGe, a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1}, ge.Values())

	notGt := UnaryOp(OpNot, gt)
	assert.Equal(t, []float64{1, 0, 1}, notGt.Values())
}
