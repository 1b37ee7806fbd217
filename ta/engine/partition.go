package engine

import (
	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/planner"
)

// resolvePartition selects the partition a plan evaluates against.
// An expression referencing a non-ohlcv source resolves to that
// source's partition; one referencing only base fields resolves to
// the ohlcv partition. Missing partitions fail with
// PartitionMissing.
func resolvePartition(plan *planner.Plan, ds *ta.Dataset, symbol, timeframe string) (ta.PartitionKey, error) {
	preferred := preferredSource(plan)

	if symbol != "" && timeframe != "" {
		if preferred != "" {
			key := ta.PartitionKey{Symbol: symbol, Timeframe: timeframe, Source: preferred}
			if ds.Has(key) {
				return key, nil
			}
			return ta.PartitionKey{}, &ta.PartitionMissingError{Symbol: symbol, Timeframe: timeframe, Source: preferred}
		}
		key := ta.PartitionKey{Symbol: symbol, Timeframe: timeframe, Source: ta.SourceOHLCV}
		if ds.Has(key) {
			return key, nil
		}
		return ta.PartitionKey{}, &ta.PartitionMissingError{Symbol: symbol, Timeframe: timeframe, Source: ta.SourceOHLCV}
	}

	want := preferred
	if want == "" {
		want = ta.SourceOHLCV
	}
	for _, key := range ds.Keys() {
		if key.Source != want {
			continue
		}
		if symbol != "" && key.Symbol != symbol {
			continue
		}
		if timeframe != "" && key.Timeframe != timeframe {
			continue
		}
		return key, nil
	}
	return ta.PartitionKey{}, &ta.PartitionMissingError{Symbol: symbol, Timeframe: timeframe, Source: want}
}

// preferredSource returns the single non-ohlcv source the plan
// references, or "" when the plan only touches ohlcv fields.
func preferredSource(plan *planner.Plan) string {
	sources := make(map[string]bool)
	for _, node := range plan.Nodes {
		if ref, ok := node.(*ir.SourceRef); ok && ref.Source != "" && ref.Source != ta.SourceOHLCV {
			sources[ref.Source] = true
		}
	}
	for _, req := range plan.Requirements {
		if req.Source != "" && req.Source != ta.SourceOHLCV {
			sources[req.Source] = true
		}
	}
	if len(sources) == 1 {
		for s := range sources {
			return s
		}
	}
	return ""
}
