// Package planner compiles typechecked expression IR into an
// executable plan: a DAG with integer node ids in topological order,
// merged per-(source, field) data requirements, and the alignment
// policy the engine applies when materialising inputs.
package planner

import (
	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/registry"
)

// Options configures planning.
type Options struct {
	// MergeCommonSubexpressions folds structurally identical
	// subtrees into shared DAG nodes so each is evaluated once.
	MergeCommonSubexpressions bool
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{MergeCommonSubexpressions: true}
}

// Planner builds plans against an indicator registry.
type Planner struct {
	reg     *registry.Registry
	options Options
}

// NewPlanner creates a planner.
func NewPlanner(reg *registry.Registry, options Options) *Planner {
	return &Planner{reg: reg, options: options}
}

// Options returns the planner options.
func (p *Planner) Options() Options { return p.options }

// Plan compiles an expression into a plan. The expression must have
// passed typechecking; the planner still surfaces registry errors it
// meets while resolving lookbacks.
func (p *Planner) Plan(root ir.Node) (*Plan, error) {
	b := &builder{
		planner: p,
		plan: &Plan{
			Nodes: make(map[int]ir.Node),
			Edges: make(map[int][]int),
		},
		byFingerprint: make(map[string]int),
	}
	rootID, err := b.assign(root)
	if err != nil {
		return nil, err
	}
	b.plan.RootID = rootID
	// Ids are assigned post-order, so ascending id order is a valid
	// topological order with every child before its parent.
	for id := 0; id < b.nextID; id++ {
		if _, ok := b.plan.Nodes[id]; ok {
			b.plan.TopoOrder = append(b.plan.TopoOrder, id)
		}
	}

	if err := p.collectRequirements(root, 0, b.plan); err != nil {
		return nil, err
	}
	p.chooseAlignment(b.plan)
	return b.plan, nil
}

type builder struct {
	planner       *Planner
	plan          *Plan
	byFingerprint map[string]int
	nextID        int
}

// assign gives every distinct subtree an id, children first.
func (b *builder) assign(node ir.Node) (int, error) {
	fingerprint := ir.String(node)
	if b.planner.options.MergeCommonSubexpressions {
		if id, ok := b.byFingerprint[fingerprint]; ok {
			return id, nil
		}
	}
	var childIDs []int
	for _, child := range ir.Children(node) {
		id, err := b.assign(child)
		if err != nil {
			return 0, err
		}
		childIDs = append(childIDs, id)
	}
	id := b.nextID
	b.nextID++
	b.plan.Nodes[id] = node
	b.plan.Edges[id] = childIDs
	b.byFingerprint[fingerprint] = id
	return id, nil
}

// collectRequirements walks the IR accumulating the maximum lookback
// along each chain from the root down to every source reference.
func (p *Planner) collectRequirements(node ir.Node, inherited int, plan *Plan) error {
	lookback := inherited
	switch n := node.(type) {
	case *ir.SourceRef:
		field := n.Field
		if field == "" {
			field = "close"
		}
		addRequirement(plan, Requirement{
			Source:      n.Source,
			Field:       field,
			MinLookback: maxInt(lookback, 1),
			Symbol:      n.Symbol,
			Timeframe:   n.Timeframe,
		})
		return nil
	case *ir.Call:
		spec, err := p.reg.Lookup(n.Name)
		if err != nil {
			return err
		}
		own := p.callLookback(spec, n)
		lookback = maxInt(lookback, own)
		// Context-driven inputs: record the spec's required fields
		// when no input expression feeds the call.
		if len(n.Args) == 0 {
			fields := spec.Semantics.RequiredFields
			if len(fields) == 0 && spec.Name == "select" {
				fields = []string{selectField(n)}
			}
			for _, field := range fields {
				addRequirement(plan, Requirement{
					Source:      ta.SourceOHLCV,
					Field:       field,
					MinLookback: maxInt(lookback, 1),
				})
			}
		} else if len(spec.Semantics.RequiredFields) > 1 {
			// Bar-driven kernels keep their field requirements even
			// when the primary input is an expression.
			for _, field := range spec.Semantics.RequiredFields {
				addRequirement(plan, Requirement{
					Source:      ta.SourceOHLCV,
					Field:       field,
					MinLookback: maxInt(lookback, 1),
				})
			}
		}
	case *ir.TimeShift:
		if n.Periods > 0 {
			lookback += n.Periods
		}
	}
	for _, child := range ir.Children(node) {
		if err := p.collectRequirements(child, lookback, plan); err != nil {
			return err
		}
	}
	return nil
}

// callLookback resolves the call's own lookback: the maximum of its
// lookback-bearing parameters, falling back to the spec default.
func (p *Planner) callLookback(spec *registry.IndicatorSpec, call *ir.Call) int {
	lookback := spec.Semantics.DefaultLookback
	for _, name := range spec.Semantics.LookbackParams {
		value := 0
		if bound, ok := call.Kwargs[name]; ok {
			if lit, ok := bound.(*ir.Literal); ok {
				if f, isNum := lit.Float(); isNum {
					value = int(f)
				}
			}
		} else if param := spec.Param(name); param != nil {
			if def, isNum := toInt(param.Default); isNum {
				value = def
			}
		}
		if value > lookback {
			lookback = value
		}
	}
	return lookback
}

func selectField(call *ir.Call) string {
	if lit, ok := call.Kwargs["field"].(*ir.Literal); ok {
		if field, ok := lit.Value.(string); ok {
			return field
		}
	}
	return "close"
}

// addRequirement merges per (source, field, symbol, timeframe),
// keeping the maximum lookback.
func addRequirement(plan *Plan, req Requirement) {
	for i := range plan.Requirements {
		existing := &plan.Requirements[i]
		if existing.Source == req.Source && existing.Field == req.Field &&
			existing.Symbol == req.Symbol && existing.Timeframe == req.Timeframe {
			if req.MinLookback > existing.MinLookback {
				existing.MinLookback = req.MinLookback
			}
			return
		}
	}
	plan.Requirements = append(plan.Requirements, req)
}

// chooseAlignment picks inner with no fill when every requirement
// shares one partition, and outer with forward fill when references
// span distinct timeframes (the lower frequency fills forward into
// the higher).
func (p *Planner) chooseAlignment(plan *Plan) {
	timeframes := make(map[string]bool)
	partitions := make(map[string]bool)
	for _, req := range plan.Requirements {
		timeframes[req.Timeframe] = true
		partitions[req.Symbol+"/"+req.Timeframe+"/"+req.Source] = true
	}
	if len(timeframes) > 1 {
		plan.Alignment = AlignmentPolicy{How: ta.AlignOuter, Fill: ta.FillForward}
		return
	}
	plan.Alignment = AlignmentPolicy{How: ta.AlignInner, Fill: ta.FillNone}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	}
	return 0, false
}
