package engine

import (
	"math"
	"time"

	"github.com/pkg/errors"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/kernel"
	"github.com/laakhay/ta/ta/planner"
	"github.com/laakhay/ta/ta/registry"
	"github.com/laakhay/ta/ta/trace"
)

// Tick is one streaming update: a timestamp plus any subset of the
// known fields, bare ("close") or source-qualified
// ("trades.volume"). Missing fields read as NaN and propagate via
// mask-false.
type Tick struct {
	Timestamp ta.Timestamp
	Fields    map[string]float64
}

// Backend is a long-lived streaming evaluator owning one kernel
// state per call node. Feeding it tick[0..n-1] from a fresh state
// produces exactly the sequence a batch evaluation over the same
// rows emits.
type Backend struct {
	plan      *planner.Plan
	reg       *registry.Registry
	collector *trace.Collector
	source    string

	kernels     map[int]kernel.Kernel
	specs       map[int]*registry.IndicatorSpec
	states      map[int]kernel.State
	counts      map[int]int
	aggs        map[int]*aggState
	shifts      map[int]*shiftBuffer
	lastOutputs map[int][]float64
	outputNames map[int][]string
}

// NewBackend constructs a streaming backend for a plan.
func NewBackend(plan *planner.Plan, reg *registry.Registry, collector *trace.Collector) (*Backend, error) {
	b := &Backend{
		plan:        plan,
		reg:         reg,
		collector:   collector,
		source:      preferredSource(plan),
		kernels:     make(map[int]kernel.Kernel),
		specs:       make(map[int]*registry.IndicatorSpec),
		states:      make(map[int]kernel.State),
		counts:      make(map[int]int),
		aggs:        make(map[int]*aggState),
		shifts:      make(map[int]*shiftBuffer),
		lastOutputs: make(map[int][]float64),
		outputNames: make(map[int][]string),
	}
	for _, id := range plan.TopoOrder {
		switch n := plan.Node(id).(type) {
		case *ir.Call:
			spec, err := reg.Lookup(n.Name)
			if err != nil {
				return nil, err
			}
			b.specs[id] = spec
			if spec.KernelID == "select" {
				continue
			}
			k, err := newKernel(spec, n)
			if err != nil {
				return nil, err
			}
			b.kernels[id] = k
			b.states[id] = k.Initialize(nil)
			b.outputNames[id] = k.Outputs()
		case *ir.Aggregate:
			b.aggs[id] = newAggState(n.Op)
		case *ir.TimeShift:
			b.shifts[id] = newShiftBuffer(n)
		}
	}
	return b, nil
}

// Initialize pre-warms every kernel by feeding the history dataset
// through Step in topological order, retaining the final states.
func (b *Backend) Initialize(ds *ta.Dataset, symbol, timeframe string) error {
	start := time.Now()
	part, err := resolvePartition(b.plan, ds, symbol, timeframe)
	if err != nil {
		return err
	}
	sctx, err := ds.Context(part.Symbol, part.Timeframe)
	if err != nil {
		return err
	}
	var axis ta.Series
	if s, err := sctx.Field("close"); err == nil {
		axis = s
	} else {
		fields := ds.Fields(part)
		if len(fields) == 0 {
			return &ta.PartitionMissingError{Symbol: part.Symbol, Timeframe: part.Timeframe, Source: part.Source}
		}
		axis, err = ds.Series(part, fields[0])
		if err != nil {
			return err
		}
	}

	names := sctx.FieldNames()
	for i := 0; i < axis.Len(); i++ {
		tick := Tick{Timestamp: axis.Timestamps()[i], Fields: make(map[string]float64, len(names))}
		for _, name := range names {
			s, err := sctx.Field(name)
			if err != nil || i >= s.Len() {
				continue
			}
			tick.Fields[name] = s.Value(i)
		}
		if _, err := b.Step(tick); err != nil {
			return err
		}
	}
	b.collector.AddTiming(trace.StreamInitialized, start, map[string]interface{}{
		"rows": axis.Len(),
	})
	return nil
}

// Step consumes one tick and returns the root's new value. NaN means
// the root is unavailable at this tick.
func (b *Backend) Step(tick Tick) (float64, error) {
	values := make(map[int]float64, len(b.plan.TopoOrder))
	for _, id := range b.plan.TopoOrder {
		v, err := b.stepNode(id, tick, values)
		if err != nil {
			return math.NaN(), errors.Wrapf(err, "node %d (%s)", id, b.plan.Node(id).Kind())
		}
		values[id] = v
	}
	b.collector.Add(trace.Event{Name: trace.StreamStep, Start: time.Now(), Data: map[string]interface{}{
		"timestamp": tick.Timestamp,
	}})
	return values[b.plan.RootID], nil
}

func (b *Backend) stepNode(id int, tick Tick, values map[int]float64) (float64, error) {
	children := b.plan.Edges[id]
	switch n := b.plan.Node(id).(type) {
	case *ir.Literal:
		if f, ok := n.Float(); ok {
			return f, nil
		}
		return math.NaN(), nil
	case *ir.SourceRef:
		return tickField(tick, n.Source, n.Field), nil
	case *ir.Call:
		return b.stepCall(id, n, tick, values, children)
	case *ir.BinaryOp:
		return ta.ApplyBinary(n.Op, values[children[0]], values[children[1]]), nil
	case *ir.UnaryOp:
		return ta.ApplyUnary(n.Op, values[children[0]]), nil
	case *ir.Filter:
		series, cond := values[children[0]], values[children[1]]
		if math.IsNaN(cond) || cond == 0 {
			return math.NaN(), nil
		}
		return series, nil
	case *ir.Aggregate:
		gate := values[children[0]]
		target := gate
		if n.Field != "" {
			if ref, ok := findSourceRef(n.Series); ok {
				target = tickField(tick, ref.Source, n.Field)
			} else {
				target = b.fieldFromTick(tick, n.Field)
			}
		}
		if !math.IsNaN(gate) && !math.IsNaN(target) {
			b.aggs[id].update(target)
		}
		v, ok := b.aggs[id].value()
		if !ok {
			return math.NaN(), nil
		}
		return v, nil
	case *ir.TimeShift:
		return b.shifts[id].step(tick.Timestamp, values[children[0]], n), nil
	case *ir.MemberAccess:
		return b.namedOutput(children[0], n.Member)
	case *ir.Index:
		outs := b.lastOutputs[children[0]]
		if n.Index >= len(outs) {
			return math.NaN(), errors.Errorf("output index %d out of range", n.Index)
		}
		return outs[n.Index], nil
	}
	return math.NaN(), errors.Errorf("unsupported node kind '%s'", b.plan.Node(id).Kind())
}

func (b *Backend) namedOutput(childID int, name string) (float64, error) {
	names := b.outputNames[childID]
	for i, n := range names {
		if n == name {
			return b.lastOutputs[childID][i], nil
		}
	}
	return math.NaN(), errors.Errorf("expression has no output named '%s'", name)
}

func (b *Backend) stepCall(id int, call *ir.Call, tick Tick, values map[int]float64, children []int) (float64, error) {
	spec := b.specs[id]
	if spec.KernelID == "select" {
		field := "close"
		if lit, ok := call.Kwargs["field"].(*ir.Literal); ok {
			if f, ok := lit.Value.(string); ok {
				field = f
			}
		}
		return b.fieldFromTick(tick, field), nil
	}

	sample := kernel.Sample{}
	for i, slot := range spec.Inputs {
		var v float64
		if i < len(call.Args) {
			v = values[children[i]]
		} else if slot.DefaultField != "" {
			v = tickField(tick, slot.DefaultSource, slot.DefaultField)
		} else {
			return math.NaN(), &ta.MissingRequiredFieldError{Field: slot.Name}
		}
		switch i {
		case 0:
			sample.Value = v
		case 1:
			sample.Other = v
		case 2:
			sample.Extra = v
		}
	}
	if len(spec.Inputs) == 0 {
		for _, field := range spec.Semantics.RequiredFields {
			v := tickField(tick, "", field)
			switch field {
			case "open":
				sample.Open = v
			case "high":
				sample.High = v
			case "low":
				sample.Low = v
			case "close":
				sample.Close = v
				sample.Value = v
			case "volume":
				sample.Volume = v
			}
		}
	}

	k := b.kernels[id]
	state, outs := k.Step(b.states[id], sample)
	b.states[id] = state
	b.counts[id]++
	// Warmup parity with batch: outputs before min_periods are
	// unavailable even when the recursion already yields numbers.
	if b.counts[id] < k.MinPeriods() {
		masked := make([]float64, len(outs))
		for i := range masked {
			masked[i] = math.NaN()
		}
		outs = masked
	}
	b.lastOutputs[id] = outs
	return outs[0], nil
}

// fieldFromTick resolves a bare field name, falling back to the
// plan's preferred source the way the batch evaluator falls back to
// the partition source.
func (b *Backend) fieldFromTick(tick Tick, field string) float64 {
	v := tickField(tick, "", field)
	if !math.IsNaN(v) || b.source == "" {
		return v
	}
	return tickField(tick, b.source, field)
}

// tickField resolves a field value from a tick, preferring the
// source-qualified key.
func tickField(tick Tick, source, field string) float64 {
	field = ta.CanonicalField(field)
	if field == "" && source != "" && source != ta.SourceOHLCV {
		// Bare source references pick a representative field, in the
		// same candidate order the batch evaluator uses.
		for _, candidate := range []string{"price", "volume", "close", "count", "value"} {
			if v, ok := tick.Fields[source+"."+candidate]; ok {
				return v
			}
		}
		return math.NaN()
	}
	if field == "" {
		field = "close"
	}
	if source != "" && source != ta.SourceOHLCV {
		if v, ok := tick.Fields[source+"."+field]; ok {
			return v
		}
		return math.NaN()
	}
	if v, ok := tick.Fields[field]; ok {
		return v
	}
	if v, ok := tick.Fields[ta.SourceOHLCV+"."+field]; ok {
		return v
	}
	if field == "price" {
		return tickField(tick, source, "close")
	}
	return math.NaN()
}

// shiftBuffer retains the child's recent history for time-shift
// lookups: a bounded index window for period shifts, a timestamped
// window for duration shifts.
type shiftBuffer struct {
	timestamps []ta.Timestamp
	values     []float64
	keepMS     int64
	keepN      int
}

func newShiftBuffer(n *ir.TimeShift) *shiftBuffer {
	buf := &shiftBuffer{}
	if n.Periods > 0 {
		buf.keepN = n.Periods + 1
	} else {
		buf.keepMS = n.DurationMS
	}
	return buf
}

func (s *shiftBuffer) clone() *shiftBuffer {
	cp := &shiftBuffer{keepMS: s.keepMS, keepN: s.keepN}
	cp.timestamps = append([]ta.Timestamp(nil), s.timestamps...)
	cp.values = append([]float64(nil), s.values...)
	return cp
}

// step records the current value and returns the shifted derivation
// for this tick.
func (s *shiftBuffer) step(now ta.Timestamp, current float64, n *ir.TimeShift) float64 {
	s.timestamps = append(s.timestamps, now)
	s.values = append(s.values, current)
	if s.keepN > 0 && len(s.values) > s.keepN {
		s.timestamps = s.timestamps[1:]
		s.values = s.values[1:]
	}
	if s.keepMS > 0 {
		cutoff := now - s.keepMS
		drop := 0
		for drop < len(s.timestamps)-1 && s.timestamps[drop] < cutoff {
			drop++
		}
		s.timestamps = s.timestamps[drop:]
		s.values = s.values[drop:]
	}

	var prev float64
	found := false
	if n.Periods > 0 {
		if len(s.values) == s.keepN {
			prev, found = s.values[0], true
		}
	} else {
		want := now - n.DurationMS
		for i, t := range s.timestamps {
			if t == want {
				prev, found = s.values[i], true
				break
			}
		}
	}
	if !found || math.IsNaN(prev) || math.IsNaN(current) {
		return math.NaN()
	}
	switch n.Op {
	case "":
		return prev
	case "change":
		return current - prev
	case "change_pct", "roc":
		if prev == 0 {
			return math.NaN()
		}
		return (current - prev) / prev * 100
	}
	return math.NaN()
}

// Snapshot is a cloneable capture of all node states plus last
// outputs. Copies are fully detached: replaying a snapshot never
// disturbs the live backend.
type Snapshot struct {
	states      map[int]kernel.State
	counts      map[int]int
	aggs        map[int]*aggState
	shifts      map[int]*shiftBuffer
	lastOutputs map[int][]float64
}

// Clone returns a detached copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		states:      cloneStates(s.states),
		counts:      cloneCounts(s.counts),
		aggs:        cloneAggs(s.aggs),
		shifts:      cloneShifts(s.shifts),
		lastOutputs: cloneOutputs(s.lastOutputs),
	}
}

// Snapshot captures the backend's current state.
func (b *Backend) Snapshot() *Snapshot {
	b.collector.Add(trace.Event{Name: trace.StreamSnapshot, Start: time.Now()})
	return &Snapshot{
		states:      cloneStates(b.states),
		counts:      cloneCounts(b.counts),
		aggs:        cloneAggs(b.aggs),
		shifts:      cloneShifts(b.shifts),
		lastOutputs: cloneOutputs(b.lastOutputs),
	}
}

// Restore replaces the backend's state with a snapshot's.
func (b *Backend) Restore(snapshot *Snapshot) {
	detached := snapshot.Clone()
	b.states = detached.states
	b.counts = detached.counts
	b.aggs = detached.aggs
	b.shifts = detached.shifts
	b.lastOutputs = detached.lastOutputs
}

// Replay restores a snapshot into a detached copy of the backend and
// feeds it the events, returning the per-tick root outputs. The live
// backend is untouched.
func (b *Backend) Replay(snapshot *Snapshot, events []Tick) ([]float64, error) {
	start := time.Now()
	replica := &Backend{
		plan:        b.plan,
		reg:         b.reg,
		collector:   nil,
		kernels:     b.kernels,
		specs:       b.specs,
		outputNames: b.outputNames,
	}
	detached := snapshot.Clone()
	replica.states = detached.states
	replica.counts = detached.counts
	replica.aggs = detached.aggs
	replica.shifts = detached.shifts
	replica.lastOutputs = detached.lastOutputs

	out := make([]float64, 0, len(events))
	for _, tick := range events {
		v, err := replica.Step(tick)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	b.collector.AddTiming(trace.StreamReplay, start, map[string]interface{}{
		"events": len(events),
	})
	return out, nil
}

func cloneCounts(in map[int]int) map[int]int {
	out := make(map[int]int, len(in))
	for id, c := range in {
		out[id] = c
	}
	return out
}

func cloneStates(in map[int]kernel.State) map[int]kernel.State {
	out := make(map[int]kernel.State, len(in))
	for id, st := range in {
		out[id] = st.Clone()
	}
	return out
}

func cloneAggs(in map[int]*aggState) map[int]*aggState {
	out := make(map[int]*aggState, len(in))
	for id, a := range in {
		out[id] = a.clone()
	}
	return out
}

func cloneShifts(in map[int]*shiftBuffer) map[int]*shiftBuffer {
	out := make(map[int]*shiftBuffer, len(in))
	for id, s := range in {
		out[id] = s.clone()
	}
	return out
}

func cloneOutputs(in map[int][]float64) map[int][]float64 {
	out := make(map[int][]float64, len(in))
	for id, vals := range in {
		out[id] = append([]float64(nil), vals...)
	}
	return out
}
