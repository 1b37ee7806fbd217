// Package ir defines the expression intermediate representation: a
// small set of tagged node variants walked by the typechecker, the
// planner, and both execution backends. Each walker performs a single
// type switch over these variants.
package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Node is the sealed interface over all expression node variants.
type Node interface {
	// Kind returns the variant tag used in error messages and plan
	// serialization.
	Kind() string
	node()
}

// Literal holds a constant: float64, bool, or string.
type Literal struct {
	Value interface{}
}

func (*Literal) Kind() string { return "literal" }
func (*Literal) node()        {}

// Float returns the literal as a float64 (bools as 1/0) and whether
// the conversion is meaningful.
func (l *Literal) Float() (float64, bool) {
	switch v := l.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// SourceRef references a dataset partition field. Symbol and
// Timeframe are optional qualifiers; empty means "the evaluation
// partition".
type SourceRef struct {
	Source    string
	Field     string
	Symbol    string
	Timeframe string
}

func (*SourceRef) Kind() string { return "source_ref" }
func (*SourceRef) node()        {}

// Call applies a registered indicator to child expressions. Args hold
// positional arguments (an implicit input-series expression first,
// when present); Kwargs hold keyword arguments keyed by canonical
// parameter name.
type Call struct {
	Name   string
	Args   []Node
	Kwargs map[string]Node
}

func (*Call) Kind() string { return "call" }
func (*Call) node()        {}

// BinaryOp applies an arithmetic, comparison, or logical operator.
// Op is one of the ta.Op* constants (add, sub, ..., and, or).
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

func (*BinaryOp) Kind() string { return "binary_op" }
func (*BinaryOp) node()        {}

// UnaryOp applies neg, pos, or not.
type UnaryOp struct {
	Op      string
	Operand Node
}

func (*UnaryOp) Kind() string { return "unary_op" }
func (*UnaryOp) node()        {}

// Filter is a boolean-indexed view of a series.
type Filter struct {
	Series    Node
	Condition Node
}

func (*Filter) Kind() string { return "filter" }
func (*Filter) node()        {}

// Aggregate reduces a series. Op is one of sum, avg, max, min, count.
// Field optionally names the source field being aggregated.
type Aggregate struct {
	Series Node
	Op     string
	Field  string
}

func (*Aggregate) Kind() string { return "aggregate" }
func (*Aggregate) node()        {}

// TimeShift derives a lagged or change series. Exactly one of
// DurationMS (time-based suffixes such as 24h_ago) or Periods
// (roc_N) is set. Op is "" for a plain lag, or one of "change",
// "change_pct", "roc".
type TimeShift struct {
	Series     Node
	DurationMS int64
	Periods    int
	Op         string
}

func (*TimeShift) Kind() string { return "time_shift" }
func (*TimeShift) node()        {}

// MemberAccess selects a named output of a multi-output expression
// (e.g. macd(12, 26, 9).signal).
type MemberAccess struct {
	Expr   Node
	Member string
}

func (*MemberAccess) Kind() string { return "member_access" }
func (*MemberAccess) node()        {}

// Index selects an output of a multi-output expression by position.
type Index struct {
	Expr  Node
	Index int
}

func (*Index) Kind() string { return "index" }
func (*Index) node()        {}

// Children returns a node's child expressions in evaluation order.
// Kwargs children are ordered by key for determinism.
func Children(n Node) []Node {
	switch v := n.(type) {
	case *Call:
		out := make([]Node, 0, len(v.Args)+len(v.Kwargs))
		out = append(out, v.Args...)
		keys := make([]string, 0, len(v.Kwargs))
		for k := range v.Kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, v.Kwargs[k])
		}
		return out
	case *BinaryOp:
		return []Node{v.Left, v.Right}
	case *UnaryOp:
		return []Node{v.Operand}
	case *Filter:
		return []Node{v.Series, v.Condition}
	case *Aggregate:
		return []Node{v.Series}
	case *TimeShift:
		return []Node{v.Series}
	case *MemberAccess:
		return []Node{v.Expr}
	case *Index:
		return []Node{v.Expr}
	}
	return nil
}

// Walk visits n and all descendants depth-first, children before the
// visit of their parent is complete. It stops on the first error.
func Walk(n Node, visit func(Node) error) error {
	for _, child := range Children(n) {
		if err := Walk(child, visit); err != nil {
			return err
		}
	}
	return visit(n)
}

// String renders a canonical text form of the node. Structurally
// equal subtrees render identically, which the planner uses to merge
// duplicate nodes into shared DAG nodes.
func String(n Node) string {
	switch v := n.(type) {
	case *Literal:
		return fmt.Sprintf("%v", v.Value)
	case *SourceRef:
		var b strings.Builder
		b.WriteString(v.Source)
		if v.Field != "" {
			b.WriteString(".")
			b.WriteString(v.Field)
		}
		if v.Symbol != "" || v.Timeframe != "" {
			fmt.Fprintf(&b, "[%s %s]", v.Symbol, v.Timeframe)
		}
		return b.String()
	case *Call:
		parts := make([]string, 0, len(v.Args)+len(v.Kwargs))
		for _, a := range v.Args {
			parts = append(parts, String(a))
		}
		keys := make([]string, 0, len(v.Kwargs))
		for k := range v.Kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+String(v.Kwargs[k]))
		}
		return v.Name + "(" + strings.Join(parts, ", ") + ")"
	case *BinaryOp:
		return "(" + String(v.Left) + " " + v.Op + " " + String(v.Right) + ")"
	case *UnaryOp:
		return v.Op + "(" + String(v.Operand) + ")"
	case *Filter:
		return String(v.Series) + ".filter(" + String(v.Condition) + ")"
	case *Aggregate:
		if v.Field != "" {
			return String(v.Series) + "." + v.Op + "(" + v.Field + ")"
		}
		return String(v.Series) + "." + v.Op
	case *TimeShift:
		if v.Periods != 0 {
			return fmt.Sprintf("%s.%s_%d", String(v.Series), v.Op, v.Periods)
		}
		op := v.Op
		if op == "" {
			op = "ago"
		}
		return fmt.Sprintf("%s.%s_%dms", String(v.Series), op, v.DurationMS)
	case *MemberAccess:
		return String(v.Expr) + "." + v.Member
	case *Index:
		return fmt.Sprintf("%s[%d]", String(v.Expr), v.Index)
	}
	return "?"
}
