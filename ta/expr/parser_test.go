package expr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/registry"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser(registry.NewDefault())
}

func TestParseLiteralsAndFields(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("42.5")
	require.NoError(t, err)
	lit, ok := node.(*ir.Literal)
	require.True(t, ok)
	assert.Equal(t, 42.5, lit.Value)

	node, err = p.Parse("close")
	require.NoError(t, err)
	call, ok := node.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "select", call.Name)
	field := call.Kwargs["field"].(*ir.Literal)
	assert.Equal(t, "close", field.Value)

	// One-letter aliases canonicalize.
	node, err = p.Parse("c")
	require.NoError(t, err)
	field = node.(*ir.Call).Kwargs["field"].(*ir.Literal)
	assert.Equal(t, "close", field.Value)
}

func TestParseSourceRefs(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("trades.volume")
	require.NoError(t, err)
	ref, ok := node.(*ir.SourceRef)
	require.True(t, ok)
	assert.Equal(t, "trades", ref.Source)
	assert.Equal(t, "volume", ref.Field)

	node, err = p.Parse("ohlcv.close")
	require.NoError(t, err)
	ref = node.(*ir.SourceRef)
	assert.Equal(t, "ohlcv", ref.Source)
	assert.Equal(t, "close", ref.Field)
}

func TestParsePrecedence(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("close + high * 2")
	require.NoError(t, err)
	add := node.(*ir.BinaryOp)
	assert.Equal(t, ta.OpAdd, add.Op)
	mul := add.Right.(*ir.BinaryOp)
	assert.Equal(t, ta.OpMul, mul.Op)

	node, err = p.Parse("(close + high) * 2")
	require.NoError(t, err)
	mul = node.(*ir.BinaryOp)
	assert.Equal(t, ta.OpMul, mul.Op)

	// Power is right-associative and binds tighter than unary minus.
	node, err = p.Parse("close ** 2 ** 3")
	require.NoError(t, err)
	pow := node.(*ir.BinaryOp)
	assert.Equal(t, ta.OpPow, pow.Op)
	inner := pow.Right.(*ir.BinaryOp)
	assert.Equal(t, ta.OpPow, inner.Op)
}

func TestParseComparisonChain(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("10 < close < 20")
	require.NoError(t, err)
	and := node.(*ir.BinaryOp)
	assert.Equal(t, ta.OpAnd, and.Op)
	left := and.Left.(*ir.BinaryOp)
	right := and.Right.(*ir.BinaryOp)
	assert.Equal(t, ta.OpLt, left.Op)
	assert.Equal(t, ta.OpLt, right.Op)
}

func TestParseLogicalOps(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("rsi(14) < 30 and close > 100 or not falling(close)")
	require.NoError(t, err)
	or := node.(*ir.BinaryOp)
	assert.Equal(t, ta.OpOr, or.Op)
	and := or.Left.(*ir.BinaryOp)
	assert.Equal(t, ta.OpAnd, and.Op)
	not := or.Right.(*ir.UnaryOp)
	assert.Equal(t, ta.OpNot, not.Op)
}

func TestCallArgumentBinding(t *testing.T) {
	p := newTestParser(t)

	// Expression first argument binds to the input slot.
	node, err := p.Parse("sma(close, 20)")
	require.NoError(t, err)
	call := node.(*ir.Call)
	assert.Equal(t, "rolling_mean", call.Name, "sma alias resolves to its canonical name")
	require.Len(t, call.Args, 1)
	ref := call.Args[0].(*ir.SourceRef)
	assert.Equal(t, "close", ref.Field)
	period := call.Kwargs["period"].(*ir.Literal)
	assert.Equal(t, 20.0, period.Value)

	// Literal-only form treats the first argument as p1.
	node, err = p.Parse("sma(20)")
	require.NoError(t, err)
	call = node.(*ir.Call)
	assert.Empty(t, call.Args)
	period = call.Kwargs["period"].(*ir.Literal)
	assert.Equal(t, 20.0, period.Value)

	// Nested expressions in the input slot.
	node, err = p.Parse("crossup(sma(close, 20), sma(close, 50))")
	require.NoError(t, err)
	call = node.(*ir.Call)
	require.Len(t, call.Args, 2)
	assert.Equal(t, "rolling_mean", call.Args[0].(*ir.Call).Name)

	// Scalar second input on events.
	node, err = p.Parse("crossup(rsi(14), 70)")
	require.NoError(t, err)
	call = node.(*ir.Call)
	require.Len(t, call.Args, 2)
	_, isLit := call.Args[1].(*ir.Literal)
	assert.True(t, isLit)
}

func TestKeywordArgumentsAndAliases(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("rsi(lookback=14)")
	require.NoError(t, err)
	call := node.(*ir.Call)
	period := call.Kwargs["period"].(*ir.Literal)
	assert.Equal(t, 14.0, period.Value, "lookback alias resolves to period")

	_, err = p.Parse("rsi(bogus=14)")
	var up *ta.UnknownParameterError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "bogus", up.Name)

	_, err = p.Parse("sma(20, period=14)")
	assert.Error(t, err, "duplicate positional and keyword binding")
}

func TestParseFilterAndAggregate(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("trades.filter(amount > 1000000).count > 10")
	require.NoError(t, err)
	cmp := node.(*ir.BinaryOp)
	agg := cmp.Left.(*ir.Aggregate)
	assert.Equal(t, "count", agg.Op)
	filter := agg.Series.(*ir.Filter)
	cond := filter.Condition.(*ir.BinaryOp)
	assert.Equal(t, ta.OpGt, cond.Op)
	ref := filter.Series.(*ir.SourceRef)
	assert.Equal(t, "trades", ref.Source)

	node, err = p.Parse("trades.sum(amount)")
	require.NoError(t, err)
	agg = node.(*ir.Aggregate)
	assert.Equal(t, "sum", agg.Op)
	assert.Equal(t, "amount", agg.Field)

	node, err = p.Parse("trades.count")
	require.NoError(t, err)
	agg = node.(*ir.Aggregate)
	assert.Equal(t, "count", agg.Op)
}

func TestParseTimeShiftSuffixes(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("close.24h_ago")
	require.NoError(t, err)
	shift := node.(*ir.TimeShift)
	assert.Equal(t, int64(24*3_600_000), shift.DurationMS)
	assert.Equal(t, "", shift.Op)

	node, err = p.Parse("volume.change_pct_24h > 10")
	require.NoError(t, err)
	cmp := node.(*ir.BinaryOp)
	shift = cmp.Left.(*ir.TimeShift)
	assert.Equal(t, "change_pct", shift.Op)

	node, err = p.Parse("close.roc_14")
	require.NoError(t, err)
	shift = node.(*ir.TimeShift)
	assert.Equal(t, 14, shift.Periods)
	assert.Equal(t, "roc", shift.Op)

	node, err = p.Parse("close.change_1w")
	require.NoError(t, err)
	shift = node.(*ir.TimeShift)
	assert.Equal(t, int64(7*24*3_600_000), shift.DurationMS)
	assert.Equal(t, "change", shift.Op)
}

func TestParseMemberAccess(t *testing.T) {
	p := newTestParser(t)

	node, err := p.Parse("macd(close, 12, 26, 9).signal")
	require.NoError(t, err)
	member := node.(*ir.MemberAccess)
	assert.Equal(t, "signal", member.Member)
	call := member.Expr.(*ir.Call)
	assert.Equal(t, "macd", call.Name)

	node, err = p.Parse("in_channel(close, bbands(close, 20, 2).upper, bbands(close, 20, 2).lower)")
	require.NoError(t, err)
	channel := node.(*ir.Call)
	require.Len(t, channel.Args, 3)
	upper := channel.Args[1].(*ir.MemberAccess)
	assert.Equal(t, "upper", upper.Member)
}

func TestParseErrors(t *testing.T) {
	p := newTestParser(t)
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"unknown identifier", "wibble"},
		{"unknown indicator", "sma2(close, 20)"},
		{"dangling operator", "close +"},
		{"unbalanced paren", "(close + 1"},
		{"bad character", "close @ 2"},
		{"multiline", "close\n+ 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.input)
			require.Error(t, err)
		})
	}
}

func TestParseErrorPositions(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Parse("close + $")
	var pe *ta.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 9, pe.Position)
}

func TestExpressionLengthBound(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Parse("close + " + strings.Repeat("1 + ", 20_000) + "1" + strings.Repeat(" ", MaxExpressionLength))
	var pe *ta.ParseError
	require.ErrorAs(t, err, &pe)
}
