package registry

// The default catalog. Specs are frozen at registration; the kernel
// id binds each indicator to its state machine in ta/kernel.

func intParam(name string, def int) ParamSpec {
	return ParamSpec{Name: name, Type: ParamInt, Default: def, Min: minOf(1)}
}

func floatParam(name string, def float64) ParamSpec {
	return ParamSpec{Name: name, Type: ParamFloat, Default: def}
}

func line(name string) OutputSpec { return OutputSpec{Name: name, Role: "line"} }

func result() []OutputSpec { return []OutputSpec{line("result")} }

func closeInput() []InputSlot {
	return []InputSlot{{Name: "input_series", DefaultSource: "ohlcv", DefaultField: "close"}}
}

var periodAliases = map[string]string{"lookback": "period", "window": "period", "length": "period"}

// NewDefault builds the full indicator registry.
func NewDefault() *Registry {
	r := New()

	// Selection and element-wise primitives.
	r.MustRegister(&IndicatorSpec{
		Name:        "select",
		Description: "Select a named field from the evaluation partition",
		Category:    "basic",
		Params: []ParamSpec{
			{Name: "field", Type: ParamString, Default: "close"},
		},
		Outputs:   result(),
		Semantics: Semantics{DefaultLookback: 1},
		KernelID:  "select",
	})
	for _, m := range []struct {
		name    string
		kernel  string
		def     int
		aliases []string
	}{
		{"rolling_sum", "rolling_sum", 14, nil},
		{"rolling_mean", "rolling_mean", 14, []string{"sma", "mean"}},
		{"rolling_std", "rolling_std", 20, []string{"std"}},
		{"rolling_max", "rolling_max", 14, []string{"highest"}},
		{"rolling_min", "rolling_min", 14, []string{"lowest"}},
		{"rolling_median", "rolling_median", 14, []string{"median"}},
		{"rolling_argmax", "rolling_argmax", 14, nil},
		{"rolling_argmin", "rolling_argmin", 14, nil},
	} {
		r.MustRegister(&IndicatorSpec{
			Name:         m.name,
			Description:  "Rolling window statistic over a price series",
			Category:     "basic",
			Inputs:       closeInput(),
			Params:       []ParamSpec{intParam("period", m.def)},
			Outputs:      result(),
			Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
			KernelID:     m.kernel,
			Aliases:      m.aliases,
			ParamAliases: periodAliases,
		})
	}

	r.MustRegister(&IndicatorSpec{
		Name:         "ema",
		Description:  "Exponential moving average (alpha = 2/(period+1))",
		Category:     "trend",
		Inputs:       closeInput(),
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "ema",
		Aliases:      []string{"rolling_ema"},
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "rma",
		Description:  "Wilder moving average (alpha = 1/period)",
		Category:     "trend",
		Inputs:       closeInput(),
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "rma",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "wma",
		Description:  "Weighted moving average over a price series",
		Category:     "trend",
		Inputs:       closeInput(),
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "wma",
		Aliases:      []string{"rolling_wma"},
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "hma",
		Description:  "Hull moving average (fast, lag-reduced)",
		Category:     "trend",
		Inputs:       closeInput(),
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "hma",
		ParamAliases: periodAliases,
	})

	for _, m := range []struct {
		name   string
		desc   string
		kernel string
	}{
		{"diff", "First difference of a series", "diff"},
		{"cumsum", "Cumulative sum of a series", "cumsum"},
		{"abs", "Element-wise absolute value", "abs"},
		{"sign", "Element-wise sign (-1, 0, 1)", "sign"},
	} {
		r.MustRegister(&IndicatorSpec{
			Name:        m.name,
			Description: m.desc,
			Category:    "basic",
			Inputs:      closeInput(),
			Outputs:     result(),
			Semantics:   Semantics{RequiredFields: []string{"close"}, DefaultLookback: 2},
			KernelID:    m.kernel,
		})
	}
	r.MustRegister(&IndicatorSpec{
		Name:        "shift",
		Description: "Value k bars ago",
		Category:    "basic",
		Inputs:      closeInput(),
		Params:      []ParamSpec{intParam("periods", 1)},
		Outputs:     result(),
		Semantics:   Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"periods"}},
		KernelID:    "shift",
		Aliases:     []string{"lag"},
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "true_range",
		Description: "Bar true range against the prior close",
		Category:    "volatility",
		Outputs:     result(),
		Semantics:   Semantics{RequiredFields: []string{"high", "low", "close"}, DefaultLookback: 2},
		KernelID:    "true_range",
		Aliases:     []string{"tr"},
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "typical_price",
		Description: "Typical price (high + low + close) / 3",
		Category:    "basic",
		Outputs:     result(),
		Semantics:   Semantics{RequiredFields: []string{"high", "low", "close"}, DefaultLookback: 1},
		KernelID:    "typical_price",
	})

	// Momentum.
	r.MustRegister(&IndicatorSpec{
		Name:        "rsi",
		Description: "Relative Strength Index with Wilder smoothing",
		Category:    "momentum",
		Inputs:      closeInput(),
		Params: []ParamSpec{
			intParam("period", 14),
			{Name: "zero_loss_hundred", Type: ParamBool, Default: false},
		},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "rsi",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "roc",
		Description:  "Rate of change over N periods, percent",
		Category:     "momentum",
		Inputs:       closeInput(),
		Params:       []ParamSpec{intParam("period", 12)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "roc",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "cmo",
		Description:  "Chande Momentum Oscillator",
		Category:     "momentum",
		Inputs:       closeInput(),
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "cmo",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "cci",
		Description:  "Commodity Channel Index",
		Category:     "momentum",
		Params:       []ParamSpec{intParam("period", 20)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"high", "low", "close"}, LookbackParams: []string{"period"}},
		KernelID:     "cci",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "williams_r",
		Description:  "Williams %R",
		Category:     "momentum",
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"high", "low", "close"}, LookbackParams: []string{"period"}},
		KernelID:     "williams_r",
		Aliases:      []string{"wr"},
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "ao",
		Description: "Awesome Oscillator (median-price SMA spread)",
		Category:    "momentum",
		Params: []ParamSpec{
			intParam("fast_period", 5),
			intParam("slow_period", 34),
		},
		Outputs:   result(),
		Semantics: Semantics{RequiredFields: []string{"high", "low"}, LookbackParams: []string{"fast_period", "slow_period"}},
		KernelID:  "ao",
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "coppock",
		Description: "Coppock Curve (WMA of summed ROCs)",
		Category:    "momentum",
		Inputs:      closeInput(),
		Params: []ParamSpec{
			intParam("wma_period", 10),
			intParam("roc_long", 14),
			intParam("roc_short", 11),
		},
		Outputs:   result(),
		Semantics: Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"wma_period", "roc_long", "roc_short"}},
		KernelID:  "coppock",
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "stochastic",
		Description: "Stochastic Oscillator (%K and %D)",
		Category:    "momentum",
		Params: []ParamSpec{
			intParam("k_period", 14),
			intParam("d_period", 3),
		},
		Outputs: []OutputSpec{line("k"), line("d")},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close"},
			LookbackParams: []string{"k_period", "d_period"},
		},
		KernelID: "stochastic",
		Aliases:  []string{"stoch"},
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "adx",
		Description: "Average Directional Index including +DI and -DI",
		Category:    "momentum",
		Params:      []ParamSpec{intParam("period", 14)},
		Outputs:     []OutputSpec{line("adx"), line("plus_di"), line("minus_di")},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close"},
			LookbackParams: []string{"period"},
		},
		KernelID:     "adx",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "vortex",
		Description: "Vortex Indicator (VI+ and VI-)",
		Category:    "momentum",
		Params:      []ParamSpec{intParam("period", 14)},
		Outputs:     []OutputSpec{line("plus"), line("minus")},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close"},
			LookbackParams: []string{"period"},
		},
		KernelID:     "vortex",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "mfi",
		Description: "Money Flow Index",
		Category:    "momentum",
		Params:      []ParamSpec{intParam("period", 14)},
		Outputs:     result(),
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close", "volume"},
			LookbackParams: []string{"period"},
		},
		KernelID:     "mfi",
		ParamAliases: periodAliases,
	})

	// Trend.
	r.MustRegister(&IndicatorSpec{
		Name:        "macd",
		Description: "Moving Average Convergence Divergence",
		Category:    "trend",
		Inputs:      closeInput(),
		Params: []ParamSpec{
			intParam("fast_period", 12),
			intParam("slow_period", 26),
			intParam("signal_period", 9),
		},
		Outputs: []OutputSpec{line("macd"), line("signal"), line("histogram")},
		Semantics: Semantics{
			RequiredFields: []string{"close"},
			LookbackParams: []string{"fast_period", "slow_period", "signal_period"},
		},
		KernelID:     "macd",
		ParamAliases: map[string]string{"fast": "fast_period", "slow": "slow_period", "signal": "signal_period"},
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "psar",
		Description: "Parabolic Stop and Reverse",
		Category:    "trend",
		Params: []ParamSpec{
			{Name: "af_start", Type: ParamFloat, Default: 0.02},
			{Name: "af_increment", Type: ParamFloat, Default: 0.02},
			{Name: "af_max", Type: ParamFloat, Default: 0.2},
		},
		Outputs:   []OutputSpec{line("psar"), line("direction")},
		Semantics: Semantics{RequiredFields: []string{"high", "low", "close"}, DefaultLookback: 2},
		KernelID:  "psar",
		Aliases:   []string{"parabolic_sar"},
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "supertrend",
		Description: "Supertrend line with latched direction",
		Category:    "trend",
		Params: []ParamSpec{
			intParam("period", 10),
			floatParam("multiplier", 3.0),
		},
		Outputs: []OutputSpec{line("supertrend"), line("direction")},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close"},
			LookbackParams: []string{"period"},
		},
		KernelID:     "supertrend",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "ichimoku",
		Description: "Ichimoku Cloud (Ichimoku Kinko Hyo)",
		Category:    "trend",
		Params: []ParamSpec{
			intParam("tenkan_period", 9),
			intParam("kijun_period", 26),
			intParam("span_b_period", 52),
			intParam("displacement", 26),
		},
		Outputs: []OutputSpec{
			line("tenkan_sen"), line("kijun_sen"),
			line("senkou_span_a"), line("senkou_span_b"), line("chikou_span"),
		},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close"},
			LookbackParams: []string{"tenkan_period", "kijun_period", "span_b_period"},
		},
		KernelID: "ichimoku",
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "fisher",
		Description:  "Fisher Transform with one-bar signal",
		Category:     "trend",
		Params:       []ParamSpec{intParam("period", 9)},
		Outputs:      []OutputSpec{line("fisher"), line("signal")},
		Semantics:    Semantics{RequiredFields: []string{"high", "low"}, LookbackParams: []string{"period"}},
		KernelID:     "fisher",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "elder_ray",
		Description:  "Elder Ray bull and bear power",
		Category:     "trend",
		Params:       []ParamSpec{intParam("period", 13)},
		Outputs:      []OutputSpec{line("bull_power"), line("bear_power")},
		Semantics:    Semantics{RequiredFields: []string{"high", "low", "close"}, LookbackParams: []string{"period"}},
		KernelID:     "elder_ray",
		ParamAliases: periodAliases,
	})

	// Volatility.
	r.MustRegister(&IndicatorSpec{
		Name:         "atr",
		Description:  "Average True Range (Wilder smoothing)",
		Category:     "volatility",
		Params:       []ParamSpec{intParam("period", 14)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"high", "low", "close"}, LookbackParams: []string{"period"}},
		KernelID:     "atr",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "bbands",
		Description: "Bollinger Bands (population std)",
		Category:    "volatility",
		Inputs:      closeInput(),
		Params: []ParamSpec{
			intParam("period", 20),
			floatParam("std_dev", 2.0),
		},
		Outputs:      []OutputSpec{line("upper"), line("middle"), line("lower")},
		Semantics:    Semantics{RequiredFields: []string{"close"}, LookbackParams: []string{"period"}},
		KernelID:     "bbands",
		Aliases:      []string{"bb", "bollinger"},
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "keltner",
		Description: "Keltner Channels (EMA with ATR envelope)",
		Category:    "volatility",
		Params: []ParamSpec{
			intParam("ema_period", 20),
			intParam("atr_period", 10),
			floatParam("multiplier", 2.0),
		},
		Outputs: []OutputSpec{line("upper"), line("middle"), line("lower")},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close"},
			LookbackParams: []string{"ema_period", "atr_period"},
		},
		KernelID: "keltner",
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "donchian",
		Description:  "Donchian Channels",
		Category:     "volatility",
		Params:       []ParamSpec{intParam("period", 20)},
		Outputs:      []OutputSpec{line("upper"), line("middle"), line("lower")},
		Semantics:    Semantics{RequiredFields: []string{"high", "low"}, LookbackParams: []string{"period"}},
		KernelID:     "donchian",
		ParamAliases: periodAliases,
	})

	// Volume.
	r.MustRegister(&IndicatorSpec{
		Name:        "obv",
		Description: "On-Balance Volume",
		Category:    "volume",
		Outputs:     result(),
		Semantics:   Semantics{RequiredFields: []string{"close", "volume"}, DefaultLookback: 2},
		KernelID:    "obv",
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "vwap",
		Description: "Cumulative volume-weighted average price",
		Category:    "volume",
		Outputs:     result(),
		Semantics:   Semantics{RequiredFields: []string{"high", "low", "close", "volume"}, DefaultLookback: 1},
		KernelID:    "vwap",
	})
	r.MustRegister(&IndicatorSpec{
		Name:         "cmf",
		Description:  "Chaikin Money Flow",
		Category:     "volume",
		Params:       []ParamSpec{intParam("period", 20)},
		Outputs:      result(),
		Semantics:    Semantics{RequiredFields: []string{"high", "low", "close", "volume"}, LookbackParams: []string{"period"}},
		KernelID:     "cmf",
		ParamAliases: periodAliases,
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "klinger",
		Description: "Klinger Volume Oscillator",
		Category:    "volume",
		Params: []ParamSpec{
			intParam("fast_period", 34),
			intParam("slow_period", 55),
			intParam("signal_period", 13),
		},
		Outputs: []OutputSpec{line("klinger"), line("signal")},
		Semantics: Semantics{
			RequiredFields: []string{"high", "low", "close", "volume"},
			LookbackParams: []string{"fast_period", "slow_period", "signal_period"},
		},
		KernelID: "klinger",
	})

	// Pattern.
	r.MustRegister(&IndicatorSpec{
		Name:        "swing_points",
		Description: "Fractal swing highs and lows with confirmation lag",
		Category:    "pattern",
		Params: []ParamSpec{
			intParam("left", 2),
			intParam("right", 2),
			{Name: "return_mode", Type: ParamString, Default: "flags", Enum: []string{"flags", "levels"}},
			{Name: "allow_equal_extremes", Type: ParamBool, Default: false},
		},
		Outputs: []OutputSpec{
			{Name: "swing_high", Role: "level", Polarity: "high"},
			{Name: "swing_low", Role: "level", Polarity: "low"},
		},
		Semantics: Semantics{RequiredFields: []string{"high", "low"}, LookbackParams: []string{"left", "right"}},
		KernelID:  "swing_points",
	})
	r.MustRegister(&IndicatorSpec{
		Name:        "fib_retracement",
		Description: "Fibonacci retracement bands from recent swing structure",
		Category:    "pattern",
		Params: []ParamSpec{
			intParam("left", 2),
			intParam("right", 2),
		},
		Outputs: []OutputSpec{
			{Name: "anchor_high", Role: "level", Polarity: "high"},
			{Name: "anchor_low", Role: "level", Polarity: "low"},
			line("down_382"), line("down_500"), line("down_618"),
			line("up_382"), line("up_500"), line("up_618"),
		},
		Semantics: Semantics{RequiredFields: []string{"high", "low"}, LookbackParams: []string{"left", "right"}},
		KernelID:  "fib_retracement",
		Aliases:   []string{"fib"},
	})

	// Events.
	for _, m := range []struct {
		name string
		desc string
	}{
		{"crossup", "Detect when series a crosses above series b"},
		{"crossdown", "Detect when series a crosses below series b"},
		{"cross", "Detect when series a crosses series b in either direction"},
	} {
		r.MustRegister(&IndicatorSpec{
			Name:        m.name,
			Description: m.desc,
			Category:    "events",
			Inputs: []InputSlot{
				{Name: "a", DefaultSource: "ohlcv", DefaultField: "close"},
				{Name: "b"},
			},
			Outputs:   result(),
			Semantics: Semantics{RequiredFields: []string{"close"}, DefaultLookback: 2},
			KernelID:  m.name,
		})
	}
	for _, m := range []struct {
		name string
		desc string
		pct  bool
	}{
		{"rising", "Detect when a series is moving up", false},
		{"falling", "Detect when a series is moving down", false},
		{"rising_pct", "Detect a rise of at least pct percent", true},
		{"falling_pct", "Detect a fall of at least pct percent", true},
	} {
		spec := &IndicatorSpec{
			Name:        m.name,
			Description: m.desc,
			Category:    "events",
			Inputs:      []InputSlot{{Name: "a", DefaultSource: "ohlcv", DefaultField: "close"}},
			Outputs:     result(),
			Semantics:   Semantics{RequiredFields: []string{"close"}, DefaultLookback: 2},
			KernelID:    m.name,
		}
		if m.pct {
			spec.Params = []ParamSpec{floatParam("pct", 5)}
		}
		r.MustRegister(spec)
	}
	for _, m := range []struct {
		name string
		desc string
	}{
		{"in_channel", "Detect when price is inside the channel"},
		{"out", "Detect when price is outside the channel"},
		{"enter", "Detect the bar on which price enters the channel"},
		{"exit", "Detect the bar on which price exits the channel"},
	} {
		r.MustRegister(&IndicatorSpec{
			Name:        m.name,
			Description: m.desc,
			Category:    "events",
			Inputs: []InputSlot{
				{Name: "price", DefaultSource: "ohlcv", DefaultField: "close"},
				{Name: "upper"},
				{Name: "lower"},
			},
			Outputs:   result(),
			Semantics: Semantics{RequiredFields: []string{"close"}, DefaultLookback: 2},
			KernelID:  m.name,
		})
	}

	return r
}
