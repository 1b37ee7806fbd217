package planner

import (
	"encoding/json"
	"fmt"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
)

// Requirement is one per-(source, field) data demand: the partition
// field the engine must materialise and the minimum lookback depth
// any kernel in the chain needs.
type Requirement struct {
	Source      string `json:"source"`
	Field       string `json:"field"`
	MinLookback int    `json:"min_lookback"`
	Timeframe   string `json:"timeframe,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
}

// AlignmentPolicy is chosen at plan time: inner with no fill when
// every requirement shares one partition, outer with forward fill
// when references span timeframes.
type AlignmentPolicy struct {
	How       ta.AlignHow `json:"how"`
	Fill      ta.FillKind `json:"fill"`
	FillValue float64     `json:"fill_value,omitempty"`
}

// Plan is the executable form of an expression: the DAG with integer
// node ids, a topological order (children before parents), the merged
// data requirements, and the alignment policy. Plans serialise to
// JSON so a host can ship them to a worker.
type Plan struct {
	Nodes        map[int]ir.Node
	Edges        map[int][]int
	RootID       int
	TopoOrder    []int
	Requirements []Requirement
	Alignment    AlignmentPolicy
}

// Node returns the IR node for an id.
func (p *Plan) Node(id int) ir.Node { return p.Nodes[id] }

// Children returns the child ids of a node.
func (p *Plan) Children(id int) []int { return p.Edges[id] }

// MaxLookback returns the largest lookback over all requirements.
func (p *Plan) MaxLookback() int {
	max := 1
	for _, req := range p.Requirements {
		if req.MinLookback > max {
			max = req.MinLookback
		}
	}
	return max
}

// planJSON is the wire form of a Plan.
type planJSON struct {
	Graph        graphJSON       `json:"graph"`
	Requirements []Requirement   `json:"requirements"`
	Alignment    AlignmentPolicy `json:"alignment"`
}

type graphJSON struct {
	Nodes     map[string]map[string]interface{} `json:"nodes"`
	Edges     map[string][]int                  `json:"edges"`
	RootID    int                               `json:"root_id"`
	TopoOrder []int                             `json:"topo_order"`
}

// MarshalJSON renders the plan as a structured record with one
// serialised entry per node.
func (p *Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{
		Graph: graphJSON{
			Nodes:     make(map[string]map[string]interface{}, len(p.Nodes)),
			Edges:     make(map[string][]int, len(p.Edges)),
			RootID:    p.RootID,
			TopoOrder: p.TopoOrder,
		},
		Requirements: p.Requirements,
		Alignment:    p.Alignment,
	}
	for id, node := range p.Nodes {
		out.Graph.Nodes[fmt.Sprintf("%d", id)] = serializeNode(node)
		out.Graph.Edges[fmt.Sprintf("%d", id)] = p.Edges[id]
	}
	return json.Marshal(out)
}

func serializeNode(node ir.Node) map[string]interface{} {
	out := map[string]interface{}{"kind": node.Kind()}
	switch n := node.(type) {
	case *ir.Literal:
		out["value"] = n.Value
	case *ir.SourceRef:
		out["source"] = n.Source
		out["field"] = n.Field
		if n.Symbol != "" {
			out["symbol"] = n.Symbol
		}
		if n.Timeframe != "" {
			out["timeframe"] = n.Timeframe
		}
	case *ir.Call:
		out["name"] = n.Name
		out["args_count"] = len(n.Args)
		kwargs := make(map[string]interface{}, len(n.Kwargs))
		for key, val := range n.Kwargs {
			if lit, ok := val.(*ir.Literal); ok {
				kwargs[key] = lit.Value
			} else {
				kwargs[key] = ir.String(val)
			}
		}
		out["kwargs"] = kwargs
	case *ir.BinaryOp:
		out["operator"] = n.Op
	case *ir.UnaryOp:
		out["operator"] = n.Op
	case *ir.Aggregate:
		out["operation"] = n.Op
		if n.Field != "" {
			out["field"] = n.Field
		}
	case *ir.TimeShift:
		out["duration_ms"] = n.DurationMS
		out["periods"] = n.Periods
		if n.Op != "" {
			out["operation"] = n.Op
		}
	case *ir.MemberAccess:
		out["member"] = n.Member
	case *ir.Index:
		out["index"] = n.Index
	}
	return out
}
