// Package engine executes plans over dataset partitions in two modes
// sharing the kernel protocol: a batch pass over a whole partition,
// and a streaming backend fed one tick at a time. For any input the
// two modes produce identical output sequences, masks included.
//
// File organization:
//   - engine.go: Engine, Options, batch entry points
//   - batch.go: per-node batch evaluators
//   - partition.go: partition resolution
//   - params.go: kernel parameter resolution shared by both modes
//   - stream.go: streaming backend with snapshot/replay
//   - table_formatter.go: tabular rendering of result series
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/planner"
	"github.com/laakhay/ta/ta/registry"
	"github.com/laakhay/ta/ta/trace"
)

// Options configures an Engine.
type Options struct {
	// Collector receives execution trace events; nil disables
	// tracing entirely.
	Collector *trace.Collector
	// KeepIntermediates retains every node's output for debugging
	// instead of freeing them as consumers finish.
	KeepIntermediates bool
}

// Engine evaluates plans. It is stateless across calls; a single
// engine may evaluate independent plans concurrently as long as the
// datasets are disjoint.
type Engine struct {
	reg  *registry.Registry
	opts Options
}

// New creates an engine bound to an indicator registry.
func New(reg *registry.Registry, opts Options) *Engine {
	return &Engine{reg: reg, opts: opts}
}

// Evaluate runs a plan in batch mode over the resolved partition and
// returns the root series. Symbol and timeframe may be empty when
// the dataset holds a single candidate partition.
func (e *Engine) Evaluate(ctx context.Context, plan *planner.Plan, ds *ta.Dataset, symbol, timeframe string) (ta.Series, error) {
	result, _, err := e.evaluate(ctx, plan, ds, symbol, timeframe, false)
	return result, err
}

// EvaluateAll runs a plan and additionally returns every node's
// output keyed by node id, for debugging.
func (e *Engine) EvaluateAll(ctx context.Context, plan *planner.Plan, ds *ta.Dataset, symbol, timeframe string) (ta.Series, map[int]ta.Series, error) {
	return e.evaluate(ctx, plan, ds, symbol, timeframe, true)
}

func (e *Engine) evaluate(ctx context.Context, plan *planner.Plan, ds *ta.Dataset, symbol, timeframe string, keepAll bool) (ta.Series, map[int]ta.Series, error) {
	start := time.Now()
	part, err := resolvePartition(plan, ds, symbol, timeframe)
	if err != nil {
		return ta.Series{}, nil, err
	}
	e.opts.Collector.AddTiming(trace.PartitionResolved, start, map[string]interface{}{
		"symbol": part.Symbol, "timeframe": part.Timeframe, "source": part.Source,
	})

	sctx, err := ds.Context(part.Symbol, part.Timeframe)
	if err != nil {
		return ta.Series{}, nil, err
	}

	run := &batchRun{
		engine:    e,
		plan:      plan,
		dataset:   ds,
		partition: part,
		sctx:      sctx,
		values:    make(map[int]value),
		uses:      make(map[int]int),
	}
	for _, children := range plan.Edges {
		for _, child := range children {
			run.uses[child]++
		}
	}

	keep := keepAll || e.opts.KeepIntermediates
	var all map[int]ta.Series
	if keep {
		all = make(map[int]ta.Series, len(plan.TopoOrder))
	}

	for _, id := range plan.TopoOrder {
		if ctx != nil {
			select {
			case <-ctx.Done():
				e.opts.Collector.Add(trace.Event{Name: trace.PlanCancelled, Start: time.Now()})
				return ta.Series{}, nil, ta.ErrCancelled
			default:
			}
		}
		nodeStart := time.Now()
		val, err := run.eval(id)
		if err != nil {
			return ta.Series{}, nil, errors.Wrapf(err, "node %d (%s)", id, plan.Node(id).Kind())
		}
		run.values[id] = val
		if keep {
			all[id] = val.primary()
		}
		e.opts.Collector.AddTiming(trace.NodeEvaluated, nodeStart, map[string]interface{}{
			"node": id, "kind": plan.Node(id).Kind(),
		})
		if !keep {
			run.release(id)
		}
	}

	root, ok := run.values[plan.RootID]
	if !ok {
		return ta.Series{}, nil, errors.Errorf("plan produced no output for root node %d", plan.RootID)
	}
	e.opts.Collector.AddTiming(trace.PlanExecuted, start, map[string]interface{}{
		"nodes": len(plan.TopoOrder),
	})
	return root.primary(), all, nil
}

// release frees child outputs whose remaining-uses counter reached
// zero. The root is always kept.
func (r *batchRun) release(id int) {
	for _, child := range r.plan.Edges[id] {
		r.uses[child]--
		if r.uses[child] <= 0 && child != r.plan.RootID {
			delete(r.values, child)
		}
	}
}

// value is a node's batch output: a single series, or a named bundle
// for multi-output indicators.
type value struct {
	single ta.Series
	multi  map[string]ta.Series
	order  []string
}

func singleValue(s ta.Series) value { return value{single: s} }

// primary returns the default output: the single series, or the
// first declared output of a bundle.
func (v value) primary() ta.Series {
	if v.multi != nil && len(v.order) > 0 {
		return v.multi[v.order[0]]
	}
	return v.single
}

func (v value) output(name string) (ta.Series, bool) {
	if v.multi == nil {
		return ta.Series{}, false
	}
	s, ok := v.multi[name]
	return s, ok
}
