package expr

import (
	"regexp"
	"strconv"

	"github.com/laakhay/ta/ta/ir"
)

// Attribute suffixes matching these patterns construct TimeShift
// nodes: 24h_ago, change_24h, change_pct_24h, roc_14.
var (
	agoPattern       = regexp.MustCompile(`^(\d+)([mhdw])_ago$`)
	changePattern    = regexp.MustCompile(`^change_(\d+)([mhdw])$`)
	changePctPattern = regexp.MustCompile(`^change_pct_(\d+)([mhdw])$`)
	rocPattern       = regexp.MustCompile(`^roc_(\d+)$`)
)

var unitMillis = map[string]int64{
	"m": 60 * 1000,
	"h": 60 * 60 * 1000,
	"d": 24 * 60 * 60 * 1000,
	"w": 7 * 24 * 60 * 60 * 1000,
}

// parseTimeShiftSuffix recognizes a time-shift attribute and builds
// the node, or returns nil when the attribute is not a shift.
func parseTimeShiftSuffix(series ir.Node, attr string) ir.Node {
	if m := agoPattern.FindStringSubmatch(attr); m != nil {
		return &ir.TimeShift{Series: series, DurationMS: durationOf(m)}
	}
	if m := changePattern.FindStringSubmatch(attr); m != nil {
		return &ir.TimeShift{Series: series, DurationMS: durationOf(m), Op: "change"}
	}
	if m := changePctPattern.FindStringSubmatch(attr); m != nil {
		return &ir.TimeShift{Series: series, DurationMS: durationOf(m), Op: "change_pct"}
	}
	if m := rocPattern.FindStringSubmatch(attr); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &ir.TimeShift{Series: series, Periods: n, Op: "roc"}
	}
	return nil
}

func durationOf(m []string) int64 {
	n, _ := strconv.ParseInt(m[1], 10, 64)
	return n * unitMillis[m[2]]
}
