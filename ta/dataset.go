package ta

import (
	"fmt"
	"sort"
)

// PartitionKey identifies one coherent time axis of values.
type PartitionKey struct {
	Symbol    string
	Timeframe string
	Source    string
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Symbol, k.Timeframe, k.Source)
}

// partition holds the named field series of one partition. All fields
// share a single timestamp axis.
type partition struct {
	fields map[string]Series
	order  []string
}

// Dataset maps (symbol, timeframe, source) to field series. OHLCV
// partitions carry the open/high/low/close/volume bundle on one axis;
// other sources carry whatever fields the ingest provided.
type Dataset struct {
	parts map[PartitionKey]*partition
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{parts: make(map[PartitionKey]*partition)}
}

// AddSeries registers a single field series under a partition. All
// fields of one partition must share the same timestamp axis.
func (d *Dataset) AddSeries(key PartitionKey, field string, s Series) error {
	p, ok := d.parts[key]
	if !ok {
		p = &partition{fields: make(map[string]Series)}
		d.parts[key] = p
	}
	if len(p.order) > 0 {
		first := p.fields[p.order[0]]
		if first.Len() != s.Len() {
			return &AlignmentMismatchError{Reason: fmt.Sprintf(
				"field '%s' has %d points, partition %s has %d", field, s.Len(), key, first.Len())}
		}
	}
	if _, exists := p.fields[field]; !exists {
		p.order = append(p.order, field)
	}
	p.fields[field] = s
	return nil
}

// AddOHLCV registers a full candlestick bundle sharing one axis.
func (d *Dataset) AddOHLCV(symbol, timeframe string, timestamps []Timestamp, open, high, low, closeVals, volume []float64) error {
	key := PartitionKey{Symbol: symbol, Timeframe: timeframe, Source: SourceOHLCV}
	cols := map[string][]float64{
		"open": open, "high": high, "low": low, "close": closeVals, "volume": volume,
	}
	for _, field := range []string{"open", "high", "low", "close", "volume"} {
		s, err := NewSeries(timestamps, cols[field], symbol, timeframe)
		if err != nil {
			return err
		}
		if err := d.AddSeries(key, field, s); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns all partition keys, sorted for determinism.
func (d *Dataset) Keys() []PartitionKey {
	keys := make([]PartitionKey, 0, len(d.parts))
	for k := range d.parts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Has reports whether a partition exists.
func (d *Dataset) Has(key PartitionKey) bool {
	_, ok := d.parts[key]
	return ok
}

// Series returns one field series from a partition.
func (d *Dataset) Series(key PartitionKey, field string) (Series, error) {
	p, ok := d.parts[key]
	if !ok {
		return Series{}, &PartitionMissingError{Symbol: key.Symbol, Timeframe: key.Timeframe, Source: key.Source}
	}
	field = CanonicalField(field)
	if field == "price" && key.Source == SourceOHLCV {
		field = "close"
	}
	if s, ok := p.fields[field]; ok {
		return s, nil
	}
	if key.Source == SourceOHLCV && DerivedField(field) {
		return deriveOHLCVField(p, field)
	}
	return Series{}, &UnknownFieldError{Source: key.Source, Field: field}
}

// Fields returns the stored field names of a partition in insertion
// order.
func (d *Dataset) Fields(key PartitionKey) []string {
	p, ok := d.parts[key]
	if !ok {
		return nil
	}
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Context projects a SeriesContext for one symbol/timeframe: the
// union of all available fields across that pair's partitions, with
// source-qualified names ("trades.volume") alongside bare names from
// the ohlcv partition.
func (d *Dataset) Context(symbol, timeframe string) (*SeriesContext, error) {
	ctx := newSeriesContext(symbol, timeframe)
	found := false
	for key, p := range d.parts {
		if key.Symbol != symbol || key.Timeframe != timeframe {
			continue
		}
		found = true
		for _, field := range p.order {
			ctx.put(key.Source+"."+field, p.fields[field])
			if key.Source == SourceOHLCV {
				ctx.put(field, p.fields[field])
			}
		}
	}
	if !found {
		return nil, &PartitionMissingError{Symbol: symbol, Timeframe: timeframe, Source: "*"}
	}
	return ctx, nil
}

// Range returns the ohlcv close series of a partition restricted to
// [start, end].
func (d *Dataset) Range(symbol, timeframe string, start, end Timestamp) (Series, error) {
	s, err := d.Series(PartitionKey{Symbol: symbol, Timeframe: timeframe, Source: SourceOHLCV}, "close")
	if err != nil {
		return Series{}, err
	}
	return s.SliceByTime(start, end)
}

// deriveOHLCVField computes a derived field from the base bundle.
func deriveOHLCVField(p *partition, field string) (Series, error) {
	get := func(name string) (Series, error) {
		s, ok := p.fields[name]
		if !ok {
			return Series{}, &MissingRequiredFieldError{Field: name}
		}
		return s, nil
	}
	o, errO := get("open")
	h, errH := get("high")
	l, errL := get("low")
	c, errC := get("close")

	switch field {
	case "hlc3", "typical_price":
		if errH != nil || errL != nil || errC != nil {
			return Series{}, firstErr(errH, errL, errC)
		}
		sum, err := h.Add(l)
		if err != nil {
			return Series{}, err
		}
		sum, err = sum.Add(c)
		if err != nil {
			return Series{}, err
		}
		return sum.DivScalar(3), nil
	case "ohlc4", "weighted_close":
		if errO != nil || errH != nil || errL != nil || errC != nil {
			return Series{}, firstErr(errO, errH, errL, errC)
		}
		sum, err := o.Add(h)
		if err != nil {
			return Series{}, err
		}
		sum, err = sum.Add(l)
		if err != nil {
			return Series{}, err
		}
		if field == "weighted_close" {
			// close double-weighted: (h+l+2c)/4
			sum, err = sum.Sub(o)
			if err != nil {
				return Series{}, err
			}
			sum, err = sum.Add(c)
			if err != nil {
				return Series{}, err
			}
		}
		sum, err = sum.Add(c)
		if err != nil {
			return Series{}, err
		}
		return sum.DivScalar(4), nil
	case "hl2", "median_price":
		if errH != nil || errL != nil {
			return Series{}, firstErr(errH, errL)
		}
		sum, err := h.Add(l)
		if err != nil {
			return Series{}, err
		}
		return sum.DivScalar(2), nil
	case "range":
		if errH != nil || errL != nil {
			return Series{}, firstErr(errH, errL)
		}
		return h.Sub(l)
	case "upper_wick":
		if errO != nil || errH != nil || errC != nil {
			return Series{}, firstErr(errO, errH, errC)
		}
		body, err := elementMax(o, c)
		if err != nil {
			return Series{}, err
		}
		return h.Sub(body)
	case "lower_wick":
		if errO != nil || errL != nil || errC != nil {
			return Series{}, firstErr(errO, errL, errC)
		}
		body, err := elementMin(o, c)
		if err != nil {
			return Series{}, err
		}
		return body.Sub(l)
	}
	return Series{}, &UnknownFieldError{Source: SourceOHLCV, Field: field}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// elementMax returns the element-wise maximum of two aligned series.
func elementMax(a, b Series) (Series, error) {
	gt, err := BinaryOp(OpGt, a, b)
	if err != nil {
		return Series{}, err
	}
	return pick(gt, a, b)
}

// elementMin returns the element-wise minimum of two aligned series.
func elementMin(a, b Series) (Series, error) {
	lt, err := BinaryOp(OpLt, a, b)
	if err != nil {
		return Series{}, err
	}
	return pick(lt, a, b)
}

// pick selects a[i] where cond[i] is truthy, else b[i].
func pick(cond, a, b Series) (Series, error) {
	n := cond.Len()
	vals := make([]float64, n)
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		if !cond.mask[i] || !a.mask[i] || !b.mask[i] {
			vals[i] = nan()
			continue
		}
		if cond.values[i] != 0 {
			vals[i] = a.values[i]
		} else {
			vals[i] = b.values[i]
		}
		mask[i] = true
	}
	return cond.WithValues(vals, mask)
}
