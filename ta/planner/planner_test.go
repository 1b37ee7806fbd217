package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/expr"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/registry"
)

func planText(t *testing.T, text string, opts Options) *Plan {
	t.Helper()
	reg := registry.NewDefault()
	node, err := expr.NewParser(reg).Parse(text)
	require.NoError(t, err)
	plan, err := NewPlanner(reg, opts).Plan(node)
	require.NoError(t, err)
	return plan
}

func TestTopologicalOrder(t *testing.T) {
	plan := planText(t, "sma(close, 20) > sma(close, 50)", DefaultOptions())

	position := make(map[int]int, len(plan.TopoOrder))
	for i, id := range plan.TopoOrder {
		position[id] = i
	}
	for id, children := range plan.Edges {
		for _, child := range children {
			assert.Less(t, position[child], position[id], "child %d must precede parent %d", child, id)
		}
	}
	assert.Equal(t, plan.TopoOrder[len(plan.TopoOrder)-1], plan.RootID, "root comes last")
}

func TestCommonSubexpressionMerging(t *testing.T) {
	merged := planText(t, "sma(close, 20) - sma(close, 20)", DefaultOptions())
	root := merged.Edges[merged.RootID]
	require.Len(t, root, 2)
	assert.Equal(t, root[0], root[1], "identical subtrees share one node")

	unmerged := planText(t, "sma(close, 20) - sma(close, 20)", Options{})
	root = unmerged.Edges[unmerged.RootID]
	assert.NotEqual(t, root[0], root[1])
}

func TestRequirementsMergeTakesMaxLookback(t *testing.T) {
	plan := planText(t, "sma(close, 20) > sma(close, 50)", DefaultOptions())

	var closeReq *Requirement
	for i := range plan.Requirements {
		if plan.Requirements[i].Field == "close" {
			closeReq = &plan.Requirements[i]
		}
	}
	require.NotNil(t, closeReq)
	assert.Equal(t, ta.SourceOHLCV, closeReq.Source)
	assert.Equal(t, 50, closeReq.MinLookback)
	assert.Equal(t, 50, plan.MaxLookback())
}

func TestRequirementsForBarKernels(t *testing.T) {
	plan := planText(t, "atr(14)", DefaultOptions())

	fields := make(map[string]int)
	for _, req := range plan.Requirements {
		fields[req.Field] = req.MinLookback
	}
	for _, field := range []string{"high", "low", "close"} {
		assert.Equal(t, 14, fields[field], field)
	}
}

func TestTimeShiftExtendsLookback(t *testing.T) {
	plan := planText(t, "close.roc_14", DefaultOptions())
	require.NotEmpty(t, plan.Requirements)
	assert.GreaterOrEqual(t, plan.MaxLookback(), 14)
}

func TestAlignmentPolicySinglePartition(t *testing.T) {
	plan := planText(t, "sma(close, 20) > close", DefaultOptions())
	assert.Equal(t, ta.AlignInner, plan.Alignment.How)
	assert.Equal(t, ta.FillNone, plan.Alignment.Fill)
}

func TestPlanSerialization(t *testing.T) {
	plan := planText(t, "rsi(close, 14) < 30", DefaultOptions())

	encoded, err := json.Marshal(plan)
	require.NoError(t, err)

	var decoded struct {
		Graph struct {
			Nodes     map[string]map[string]interface{} `json:"nodes"`
			RootID    int                               `json:"root_id"`
			TopoOrder []int                             `json:"topo_order"`
		} `json:"graph"`
		Requirements []Requirement `json:"requirements"`
		Alignment    struct {
			How string `json:"how"`
		} `json:"alignment"`
	}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, plan.RootID, decoded.Graph.RootID)
	assert.Len(t, decoded.Graph.Nodes, len(plan.Nodes))
	assert.Equal(t, "inner", decoded.Alignment.How)

	foundCall := false
	for _, node := range decoded.Graph.Nodes {
		if node["kind"] == "call" && node["name"] == "rsi" {
			foundCall = true
		}
	}
	assert.True(t, foundCall, "serialized plan names its call nodes")
}

func TestAlignmentPolicyAcrossTimeframes(t *testing.T) {
	reg := registry.NewDefault()
	// Hand-built IR: hosts may reference another timeframe directly.
	node := &ir.BinaryOp{
		Op:    ta.OpGt,
		Left:  &ir.SourceRef{Source: ta.SourceOHLCV, Field: "close"},
		Right: &ir.SourceRef{Source: ta.SourceOHLCV, Field: "close", Timeframe: "4h"},
	}
	plan, err := NewPlanner(reg, DefaultOptions()).Plan(node)
	require.NoError(t, err)
	assert.Equal(t, ta.AlignOuter, plan.Alignment.How)
	assert.Equal(t, ta.FillForward, plan.Alignment.Fill, "lower frequency fills forward")
}
