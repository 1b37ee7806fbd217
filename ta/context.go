package ta

import (
	"math"
	"sort"
)

func nan() float64 { return math.NaN() }

// SeriesContext is the view handed to kernels and the engine: a set
// of named series sharing symbol and timeframe. Derived OHLCV fields
// (hlc3, ohlc4, hl2, range, upper_wick, lower_wick, ...) are computed
// lazily on first request and cached.
type SeriesContext struct {
	symbol    string
	timeframe string
	fields    map[string]Series
}

func newSeriesContext(symbol, timeframe string) *SeriesContext {
	return &SeriesContext{
		symbol:    symbol,
		timeframe: timeframe,
		fields:    make(map[string]Series),
	}
}

// NewSeriesContext builds a context from explicit named series. Used
// by tests and by the engine when bundling kernel inputs.
func NewSeriesContext(symbol, timeframe string, fields map[string]Series) *SeriesContext {
	ctx := newSeriesContext(symbol, timeframe)
	for name, s := range fields {
		ctx.put(name, s)
	}
	return ctx
}

func (c *SeriesContext) put(name string, s Series) { c.fields[name] = s }

// Symbol returns the context's symbol.
func (c *SeriesContext) Symbol() string { return c.symbol }

// Timeframe returns the context's timeframe.
func (c *SeriesContext) Timeframe() string { return c.timeframe }

// Has reports whether a field can be resolved, including derivable
// fields.
func (c *SeriesContext) Has(name string) bool {
	_, err := c.Field(name)
	return err == nil
}

// Field resolves a named series. One-letter aliases and "price" map
// to their canonical fields; derived OHLCV fields are computed on
// first request.
func (c *SeriesContext) Field(name string) (Series, error) {
	name = CanonicalField(name)
	if name == "price" {
		if s, ok := c.fields["close"]; ok {
			return s, nil
		}
	}
	if s, ok := c.fields[name]; ok {
		return s, nil
	}
	if DerivedField(name) {
		s, err := c.derive(name)
		if err != nil {
			return Series{}, err
		}
		c.fields[name] = s
		return s, nil
	}
	return Series{}, &MissingRequiredFieldError{Field: name}
}

// FieldNames lists the currently materialized field names, sorted.
func (c *SeriesContext) FieldNames() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *SeriesContext) derive(name string) (Series, error) {
	p := &partition{fields: c.fields}
	return deriveOHLCVField(p, name)
}
