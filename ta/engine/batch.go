package engine

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/kernel"
	"github.com/laakhay/ta/ta/planner"
)

// batchRun holds the state of one batch evaluation.
type batchRun struct {
	engine    *Engine
	plan      *planner.Plan
	dataset   *ta.Dataset
	partition ta.PartitionKey
	sctx      *ta.SeriesContext
	values    map[int]value
	uses      map[int]int
	axis      ta.Series
	axisSet   bool
}

func (r *batchRun) eval(id int) (value, error) {
	switch n := r.plan.Node(id).(type) {
	case *ir.Literal:
		return r.evalLiteral(n)
	case *ir.SourceRef:
		s, err := r.sourceSeries(n)
		if err != nil {
			return value{}, err
		}
		return singleValue(s), nil
	case *ir.Call:
		return r.evalCall(id, n)
	case *ir.BinaryOp:
		left := r.child(id, 0).primary()
		right := r.child(id, 1).primary()
		out, err := ta.BinaryOp(n.Op, left, right)
		if err != nil {
			return value{}, err
		}
		return singleValue(out), nil
	case *ir.UnaryOp:
		return singleValue(ta.UnaryOp(n.Op, r.child(id, 0).primary())), nil
	case *ir.Filter:
		return r.evalFilter(id)
	case *ir.Aggregate:
		return r.evalAggregate(id, n)
	case *ir.TimeShift:
		return r.evalTimeShift(id, n)
	case *ir.MemberAccess:
		val := r.child(id, 0)
		out, ok := val.output(n.Member)
		if !ok {
			return value{}, errors.Errorf("expression has no output named '%s'", n.Member)
		}
		return singleValue(out), nil
	case *ir.Index:
		val := r.child(id, 0)
		if n.Index >= len(val.order) {
			return value{}, errors.Errorf("output index %d out of range", n.Index)
		}
		return singleValue(val.multi[val.order[n.Index]]), nil
	}
	return value{}, errors.Errorf("unsupported node kind '%s'", r.plan.Node(id).Kind())
}

func (r *batchRun) child(id, idx int) value {
	return r.values[r.plan.Edges[id][idx]]
}

func (r *batchRun) evalLiteral(n *ir.Literal) (value, error) {
	if f, ok := n.Float(); ok {
		return singleValue(ta.NewScalarSeries(f)), nil
	}
	if _, ok := n.Value.(string); ok {
		// String literals are keyword values (select's field, a mode
		// name) that their parent call reads directly; they carry no
		// series of their own.
		return value{}, nil
	}
	return value{}, &ta.TypeCheckError{NodeKind: "literal", Expected: "a numeric or boolean constant", Actual: fmt.Sprintf("%T", n.Value)}
}

// primaryAxis is the timestamp axis the partition evaluates on: the
// close series when present, otherwise the partition's first field.
func (r *batchRun) primaryAxis() (ta.Series, error) {
	if r.axisSet {
		return r.axis, nil
	}
	if s, err := r.sctx.Field("close"); err == nil {
		r.axis, r.axisSet = s, true
		return s, nil
	}
	for _, field := range r.dataset.Fields(r.partition) {
		s, err := r.dataset.Series(r.partition, field)
		if err == nil {
			r.axis, r.axisSet = s, true
			return s, nil
		}
	}
	return ta.Series{}, &ta.PartitionMissingError{
		Symbol: r.partition.Symbol, Timeframe: r.partition.Timeframe, Source: r.partition.Source,
	}
}

// fieldSeries resolves a field for the evaluation partition: bare
// names first, then qualified by the partition source.
func (r *batchRun) fieldSeries(field string) (ta.Series, error) {
	if s, err := r.sctx.Field(field); err == nil {
		return s, nil
	}
	if s, err := r.sctx.Field(r.partition.Source + "." + field); err == nil {
		return s, nil
	}
	return ta.Series{}, &ta.UnknownFieldError{Source: r.partition.Source, Field: field}
}

// sourceSeries resolves an explicit source reference. References to
// another timeframe are fetched from the dataset and projected onto
// the primary axis per the plan's alignment policy.
func (r *batchRun) sourceSeries(ref *ir.SourceRef) (ta.Series, error) {
	if ref.Timeframe != "" && ref.Timeframe != r.partition.Timeframe {
		symbol := ref.Symbol
		if symbol == "" {
			symbol = r.partition.Symbol
		}
		key := ta.PartitionKey{Symbol: symbol, Timeframe: ref.Timeframe, Source: ref.Source}
		remote, err := r.dataset.Series(key, ref.Field)
		if err != nil {
			return ta.Series{}, err
		}
		axis, err := r.primaryAxis()
		if err != nil {
			return ta.Series{}, err
		}
		// Lower-frequency data fills forward into the evaluation
		// timeframe.
		_, projected, err := ta.Align(axis, remote.WithMetadata(axis.Symbol(), axis.Timeframe()),
			r.plan.Alignment.How, ta.FillPolicy{Kind: r.plan.Alignment.Fill, Value: r.plan.Alignment.FillValue})
		if err != nil {
			return ta.Series{}, err
		}
		return projected, nil
	}

	field := ref.Field
	if field == "" {
		return r.sourceAxisSeries(ref.Source)
	}
	if ref.Source != ta.SourceOHLCV {
		// Qualified lookups never fall back to same-named ohlcv
		// fields.
		if s, err := r.sctx.Field(ref.Source + "." + field); err == nil {
			return s, nil
		}
		return ta.Series{}, &ta.PartitionMissingError{
			Symbol: r.partition.Symbol, Timeframe: r.partition.Timeframe, Source: ref.Source,
		}
	}
	return r.fieldSeries(field)
}

// sourceAxisSeries picks a representative series for a bare source
// reference (used by filters and aggregations).
func (r *batchRun) sourceAxisSeries(source string) (ta.Series, error) {
	for _, candidate := range []string{"price", "volume", "close", "count", "value"} {
		if s, err := r.sctx.Field(source + "." + candidate); err == nil {
			return s, nil
		}
		if source == ta.SourceOHLCV {
			if s, err := r.sctx.Field(candidate); err == nil {
				return s, nil
			}
		}
	}
	key := ta.PartitionKey{Symbol: r.partition.Symbol, Timeframe: r.partition.Timeframe, Source: source}
	for _, field := range r.dataset.Fields(key) {
		if s, err := r.dataset.Series(key, field); err == nil {
			return s, nil
		}
	}
	return ta.Series{}, &ta.PartitionMissingError{
		Symbol: r.partition.Symbol, Timeframe: r.partition.Timeframe, Source: source,
	}
}

func (r *batchRun) evalCall(id int, call *ir.Call) (value, error) {
	spec, err := r.engine.reg.Lookup(call.Name)
	if err != nil {
		return value{}, err
	}

	// select() is a plain field projection.
	if spec.KernelID == "select" {
		field := "close"
		if lit, ok := call.Kwargs["field"].(*ir.Literal); ok {
			if f, ok := lit.Value.(string); ok {
				field = f
			}
		}
		s, err := r.fieldSeries(field)
		if err != nil {
			return value{}, err
		}
		return singleValue(s), nil
	}

	k, err := newKernel(spec, call)
	if err != nil {
		return value{}, err
	}

	// Gather slot inputs: bound expressions first, then defaults.
	inputs := make([]ta.Series, 0, len(spec.Inputs))
	for i, slot := range spec.Inputs {
		if i < len(call.Args) {
			inputs = append(inputs, r.child(id, i).primary())
			continue
		}
		if slot.DefaultField == "" {
			return value{}, &ta.MissingRequiredFieldError{Field: slot.Name}
		}
		s, err := r.fieldSeries(slot.DefaultField)
		if err != nil {
			return value{}, err
		}
		inputs = append(inputs, s)
	}

	// Bar-driven kernels read their fields from the context.
	var barFields map[string]ta.Series
	if len(spec.Inputs) == 0 {
		barFields = make(map[string]ta.Series, len(spec.Semantics.RequiredFields))
		for _, field := range spec.Semantics.RequiredFields {
			s, err := r.fieldSeries(field)
			if err != nil {
				return value{}, err
			}
			barFields[field] = s
		}
	}

	axis, inputs, err := r.alignInputs(inputs, barFields)
	if err != nil {
		return value{}, err
	}
	return r.runKernel(k, spec.OutputNames(), axis, inputs, barFields)
}

// alignInputs places all slot inputs on a common axis. Scalars
// broadcast onto the axis; bar fields already share the partition
// axis.
func (r *batchRun) alignInputs(inputs []ta.Series, barFields map[string]ta.Series) (ta.Series, []ta.Series, error) {
	var axis ta.Series
	found := false
	for _, s := range inputs {
		if !s.IsScalar() {
			axis, found = s, true
			break
		}
	}
	if !found {
		for _, s := range barFields {
			axis, found = s, true
			break
		}
	}
	if !found {
		a, err := r.primaryAxis()
		if err != nil {
			return ta.Series{}, nil, err
		}
		axis, found = a, true
	}

	fill := ta.FillPolicy{Kind: r.plan.Alignment.Fill, Value: r.plan.Alignment.FillValue}
	aligned := make([]ta.Series, len(inputs))
	for i, s := range inputs {
		left, right, err := ta.Align(axis, s, r.plan.Alignment.How, fill)
		if err != nil {
			return ta.Series{}, nil, err
		}
		if left.Len() != axis.Len() {
			axis = left
		}
		aligned[i] = right
	}
	// A second pass re-projects onto the final (possibly narrowed)
	// axis so every input shares it exactly.
	for i, s := range aligned {
		if s.Len() == axis.Len() {
			continue
		}
		_, right, err := ta.Align(axis, s, ta.AlignInner, fill)
		if err != nil {
			return ta.Series{}, nil, err
		}
		aligned[i] = right
	}
	return axis, aligned, nil
}

// runKernel drives a kernel over the axis: initialize on empty
// history, then one step per index, recording outputs and building
// the availability mask (index available iff past warmup and every
// input is defined there).
func (r *batchRun) runKernel(k kernel.Kernel, outputs []string, axis ta.Series, inputs []ta.Series, barFields map[string]ta.Series) (value, error) {
	n := axis.Len()
	minP := k.MinPeriods()
	outVals := make([][]float64, len(outputs))
	outMask := make([][]bool, len(outputs))
	for j := range outputs {
		outVals[j] = make([]float64, n)
		outMask[j] = make([]bool, n)
	}

	state := k.Initialize(nil)
	for i := 0; i < n; i++ {
		sample, inputOK := sampleAt(i, inputs, barFields)
		var vals []float64
		state, vals = k.Step(state, sample)
		for j := range outputs {
			v := vals[j]
			ok := inputOK && i >= minP-1 && !math.IsNaN(v)
			outVals[j][i] = v
			outMask[j][i] = ok
		}
	}

	// The chikou span looks forward: materialise it from the close
	// series, masked false where the future is unknown.
	if ich, ok := k.(*kernel.Ichimoku); ok {
		r.fillChikou(ich, axis, barFields, outputs, outVals, outMask)
	}

	if len(outputs) == 1 {
		s, err := axis.WithValues(outVals[0], outMask[0])
		if err != nil {
			return value{}, err
		}
		return singleValue(s), nil
	}
	multi := make(map[string]ta.Series, len(outputs))
	for j, name := range outputs {
		s, err := axis.WithValues(outVals[j], outMask[j])
		if err != nil {
			return value{}, err
		}
		multi[name] = s
	}
	return value{multi: multi, order: outputs}, nil
}

// sampleAt builds the kernel input for one index.
func sampleAt(i int, inputs []ta.Series, barFields map[string]ta.Series) (kernel.Sample, bool) {
	sample := kernel.Sample{}
	ok := true
	if len(inputs) > 0 {
		sample.Value = inputs[0].Value(i)
		ok = ok && inputs[0].Defined(i)
	}
	if len(inputs) > 1 {
		sample.Other = inputs[1].Value(i)
		ok = ok && inputs[1].Defined(i)
	}
	if len(inputs) > 2 {
		sample.Extra = inputs[2].Value(i)
		ok = ok && inputs[2].Defined(i)
	}
	for field, s := range barFields {
		v := s.Value(i)
		ok = ok && s.Defined(i)
		switch field {
		case "open":
			sample.Open = v
		case "high":
			sample.High = v
		case "low":
			sample.Low = v
		case "close":
			sample.Close = v
			if len(inputs) == 0 {
				sample.Value = v
			}
		case "volume":
			sample.Volume = v
		}
	}
	return sample, ok
}

// fillChikou rewrites the chikou output as close displaced backward
// (value at t equals close at t+displacement).
func (r *batchRun) fillChikou(ich *kernel.Ichimoku, axis ta.Series, barFields map[string]ta.Series, outputs []string, outVals [][]float64, outMask [][]bool) {
	closeSeries, ok := barFields["close"]
	if !ok {
		return
	}
	idx := -1
	for j, name := range outputs {
		if name == "chikou_span" {
			idx = j
			break
		}
	}
	if idx < 0 {
		return
	}
	n := axis.Len()
	disp := ich.Displacement()
	for i := 0; i < n; i++ {
		if i+disp < n && closeSeries.Defined(i+disp) {
			outVals[idx][i] = closeSeries.Value(i + disp)
			outMask[idx][i] = true
		} else {
			outVals[idx][i] = math.NaN()
			outMask[idx][i] = false
		}
	}
}

func (r *batchRun) evalFilter(id int) (value, error) {
	series := r.child(id, 0).primary()
	cond := r.child(id, 1).primary()
	left, right, err := ta.Align(series, cond, ta.AlignInner, ta.FillPolicy{Kind: ta.FillNone})
	if err != nil {
		return value{}, err
	}
	n := left.Len()
	vals := make([]float64, n)
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		if left.Defined(i) && right.Defined(i) && right.Value(i) != 0 {
			vals[i] = left.Value(i)
			mask[i] = true
		} else {
			vals[i] = math.NaN()
		}
	}
	out, err := left.WithValues(vals, mask)
	if err != nil {
		return value{}, err
	}
	return singleValue(out), nil
}

// evalAggregate computes a running reduction over the defined
// elements of the target series, so the batch sequence matches what
// the streaming backend emits tick by tick.
func (r *batchRun) evalAggregate(id int, n *ir.Aggregate) (value, error) {
	gate := r.child(id, 0).primary()
	target := gate
	if n.Field != "" {
		source := r.partition.Source
		if ref, ok := findSourceRef(n.Series); ok {
			source = ref.Source
		}
		fieldSeries, err := r.sourceSeries(&ir.SourceRef{Source: source, Field: n.Field})
		if err != nil {
			return value{}, err
		}
		left, right, err := ta.Align(gate, fieldSeries, ta.AlignInner, ta.FillPolicy{Kind: ta.FillNone})
		if err != nil {
			return value{}, err
		}
		gate, target = left, right
	}

	length := gate.Len()
	vals := make([]float64, length)
	mask := make([]bool, length)
	agg := newAggState(n.Op)
	for i := 0; i < length; i++ {
		if gate.Defined(i) && target.Defined(i) {
			agg.update(target.Value(i))
		}
		v, ok := agg.value()
		vals[i] = v
		mask[i] = ok
	}
	out, err := gate.WithValues(vals, mask)
	if err != nil {
		return value{}, err
	}
	return singleValue(out), nil
}

func findSourceRef(node ir.Node) (*ir.SourceRef, bool) {
	switch n := node.(type) {
	case *ir.SourceRef:
		return n, true
	case *ir.Filter:
		return findSourceRef(n.Series)
	case *ir.Aggregate:
		return findSourceRef(n.Series)
	}
	return nil, false
}

func (r *batchRun) evalTimeShift(id int, n *ir.TimeShift) (value, error) {
	src := r.child(id, 0).primary()
	length := src.Len()
	vals := make([]float64, length)
	mask := make([]bool, length)
	timestamps := src.Timestamps()

	lookup := func(i int) (float64, bool) {
		if n.Periods > 0 {
			j := i - n.Periods
			if j < 0 || !src.Defined(j) {
				return math.NaN(), false
			}
			return src.Value(j), true
		}
		j := src.IndexOf(timestamps[i] - n.DurationMS)
		if j < 0 || !src.Defined(j) {
			return math.NaN(), false
		}
		return src.Value(j), true
	}

	for i := 0; i < length; i++ {
		prev, ok := lookup(i)
		if !ok || !src.Defined(i) {
			vals[i] = math.NaN()
			continue
		}
		switch n.Op {
		case "":
			vals[i], mask[i] = prev, true
		case "change":
			vals[i], mask[i] = src.Value(i)-prev, true
		case "change_pct", "roc":
			if prev == 0 {
				vals[i] = math.NaN()
			} else {
				vals[i], mask[i] = (src.Value(i)-prev)/prev*100, true
			}
		}
	}
	out, err := src.WithValues(vals, mask)
	if err != nil {
		return value{}, err
	}
	return singleValue(out), nil
}
