package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ta "github.com/laakhay/ta/ta"
)

func simpleSpec(name string, aliases ...string) *IndicatorSpec {
	return &IndicatorSpec{
		Name:    name,
		Params:  []ParamSpec{intParam("period", 14)},
		Outputs: result(),
		Semantics: Semantics{
			RequiredFields: []string{"close"},
			LookbackParams: []string{"period"},
		},
		KernelID: name,
		Aliases:  aliases,
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(simpleSpec("thing", "alias")))

	spec, err := r.Lookup("thing")
	require.NoError(t, err)
	assert.Equal(t, "thing", spec.Name)

	viaAlias, err := r.Lookup("alias")
	require.NoError(t, err)
	assert.Same(t, spec, viaAlias)

	_, err = r.Lookup("missing")
	var ui *ta.UnknownIndicatorError
	require.ErrorAs(t, err, &ui)
	assert.Equal(t, "missing", ui.Name)
}

func TestAliasCollisions(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(simpleSpec("one", "shared")))

	assert.Error(t, r.Register(simpleSpec("one")), "duplicate canonical name")
	assert.Error(t, r.Register(simpleSpec("shared")), "canonical name shadowing an alias")
	assert.Error(t, r.Register(simpleSpec("two", "shared")), "duplicate alias")
	assert.Error(t, r.Register(simpleSpec("three", "one")), "alias shadowing a canonical name")
}

func TestRegistrationValidation(t *testing.T) {
	r := New()

	// Required parameters must not carry defaults.
	bad := simpleSpec("req")
	bad.Params = []ParamSpec{{Name: "period", Type: ParamInt, Required: true, Default: 14}}
	assert.Error(t, r.Register(bad))

	// Output names must be unique.
	bad = simpleSpec("dups")
	bad.Outputs = []OutputSpec{line("a"), line("a")}
	assert.Error(t, r.Register(bad))

	// Lookback parameters must be declared.
	bad = simpleSpec("lb")
	bad.Semantics.LookbackParams = []string{"ghost"}
	assert.Error(t, r.Register(bad))

	// Defaults must respect bounds.
	bad = simpleSpec("bounds")
	bad.Params = []ParamSpec{{Name: "period", Type: ParamInt, Default: 0, Min: minOf(1)}}
	assert.Error(t, r.Register(bad))

	// Enum defaults must be members.
	bad = simpleSpec("enum")
	bad.Params = []ParamSpec{{Name: "mode", Type: ParamString, Default: "bogus", Enum: []string{"flags", "levels"}}}
	assert.Error(t, r.Register(bad))
}

func TestDefaultCatalog(t *testing.T) {
	r := NewDefault()

	for _, name := range []string{
		"rolling_mean", "ema", "rma", "wma", "hma", "rsi", "roc", "cmo", "cci",
		"williams_r", "ao", "coppock", "stochastic", "adx", "vortex", "mfi",
		"macd", "psar", "supertrend", "ichimoku", "fisher", "elder_ray",
		"atr", "bbands", "keltner", "donchian",
		"obv", "vwap", "cmf", "klinger",
		"swing_points", "fib_retracement",
		"crossup", "crossdown", "cross", "rising", "falling", "rising_pct",
		"falling_pct", "in_channel", "out", "enter", "exit",
		"select", "diff", "shift", "cumsum", "abs", "sign", "true_range", "typical_price",
	} {
		spec, err := r.Lookup(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, spec.KernelID, name)
	}

	// Aliases from the original catalog.
	for alias, canonical := range map[string]string{
		"sma":    "rolling_mean",
		"bb":     "bbands",
		"stoch":  "stochastic",
		"wr":     "williams_r",
		"median": "rolling_median",
		"tr":     "true_range",
	} {
		spec, err := r.Lookup(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, canonical, spec.Name, alias)
	}

	// Parameter aliases resolve on a representative spec.
	rsi, err := r.Lookup("rsi")
	require.NoError(t, err)
	assert.Equal(t, "period", rsi.ResolveParamAlias("lookback"))
	assert.Equal(t, "period", rsi.ResolveParamAlias("window"))

	macd, err := r.Lookup("macd")
	require.NoError(t, err)
	assert.Equal(t, []string{"macd", "signal", "histogram"}, macd.OutputNames())
}
