// Package typecheck statically validates expression IR against the
// indicator registry before any planning or execution happens.
package typecheck

import (
	"fmt"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/registry"
)

// Check walks the IR and validates every node. Errors are returned
// eagerly; nothing executes on a failed check.
func Check(node ir.Node, reg *registry.Registry) error {
	c := &checker{reg: reg}
	return ir.Walk(node, c.visit)
}

type checker struct {
	reg *registry.Registry
}

func (c *checker) visit(node ir.Node) error {
	switch n := node.(type) {
	case *ir.Call:
		return c.checkCall(n)
	case *ir.SourceRef:
		return c.checkSourceRef(n)
	case *ir.BinaryOp:
		if !ta.IsBinaryOp(n.Op) {
			return &ta.TypeCheckError{NodeKind: "binary_op", Expected: "a known operator", Actual: n.Op}
		}
	case *ir.UnaryOp:
		switch n.Op {
		case ta.OpNeg, ta.OpPos, ta.OpNot:
		default:
			return &ta.TypeCheckError{NodeKind: "unary_op", Expected: "neg, pos, or not", Actual: n.Op}
		}
	case *ir.Filter:
		return c.checkFilter(n)
	case *ir.Aggregate:
		return c.checkAggregate(n)
	case *ir.TimeShift:
		return c.checkTimeShift(n)
	case *ir.MemberAccess:
		return c.checkMemberAccess(n)
	case *ir.Index:
		if n.Index < 0 {
			return &ta.TypeCheckError{NodeKind: "index", Expected: "a non-negative index", Actual: fmt.Sprintf("%d", n.Index)}
		}
	}
	return nil
}

func (c *checker) checkSourceRef(n *ir.SourceRef) error {
	if !ta.KnownSource(n.Source) {
		return &ta.UnknownFieldError{Source: n.Source, Field: n.Field}
	}
	if n.Field != "" && !ta.ValidSourceField(n.Source, n.Field) {
		return &ta.UnknownFieldError{Source: n.Source, Field: n.Field}
	}
	return nil
}

func (c *checker) checkCall(n *ir.Call) error {
	spec, err := c.reg.Lookup(n.Name)
	if err != nil {
		return err
	}

	if len(n.Args) > len(spec.Inputs) {
		return &ta.TypeCheckError{
			NodeKind: n.Name,
			Expected: fmt.Sprintf("at most %d input expressions", len(spec.Inputs)),
			Actual:   fmt.Sprintf("%d", len(n.Args)),
		}
	}

	resolved := make(map[string]float64)
	for name, value := range n.Kwargs {
		canonical := spec.ResolveParamAlias(name)
		param := spec.Param(canonical)
		if param == nil {
			return &ta.UnknownParameterError{Indicator: spec.Name, Name: name}
		}
		lit, ok := value.(*ir.Literal)
		if param.Type != registry.ParamSeries && !ok {
			return &ta.TypeCheckError{
				NodeKind:  spec.Name,
				Parameter: canonical,
				Expected:  string(param.Type) + " literal",
				Actual:    value.Kind(),
			}
		}
		if ok {
			if err := checkLiteral(spec.Name, param, lit); err != nil {
				return err
			}
			if f, isNum := lit.Float(); isNum {
				resolved[canonical] = f
			}
		}
	}

	for i := range spec.Params {
		param := &spec.Params[i]
		_, bound := n.Kwargs[param.Name]
		if param.Required && !bound {
			return &ta.TypeCheckError{
				NodeKind:  spec.Name,
				Parameter: param.Name,
				Expected:  "a value (required parameter)",
				Actual:    "missing",
			}
		}
		if !bound {
			if def, isNum := toFloat(param.Default); isNum {
				resolved[param.Name] = def
			}
		}
	}

	return checkParamRelations(spec.Name, resolved)
}

// checkLiteral validates a literal against a parameter spec with one
// safe coercion: int<->float where lossless.
func checkLiteral(indicator string, param *registry.ParamSpec, lit *ir.Literal) error {
	mismatch := func(actual string) error {
		return &ta.TypeCheckError{NodeKind: indicator, Parameter: param.Name, Expected: string(param.Type), Actual: actual}
	}
	switch param.Type {
	case registry.ParamInt:
		f, ok := lit.Value.(float64)
		if !ok {
			return mismatch(fmt.Sprintf("%T", lit.Value))
		}
		if f != float64(int(f)) {
			return mismatch(fmt.Sprintf("float %v", f))
		}
	case registry.ParamFloat:
		if _, ok := lit.Value.(float64); !ok {
			return mismatch(fmt.Sprintf("%T", lit.Value))
		}
	case registry.ParamString:
		s, ok := lit.Value.(string)
		if !ok {
			return mismatch(fmt.Sprintf("%T", lit.Value))
		}
		if len(param.Enum) > 0 {
			for _, e := range param.Enum {
				if e == s {
					return nil
				}
			}
			return &ta.InvalidParameterError{Name: param.Name, Reason: fmt.Sprintf("'%s' not in %v", s, param.Enum)}
		}
	case registry.ParamBool:
		if _, ok := lit.Value.(bool); !ok {
			return mismatch(fmt.Sprintf("%T", lit.Value))
		}
	}
	if f, isNum := lit.Float(); isNum {
		if param.Min != nil && f < *param.Min {
			return &ta.InvalidParameterError{Name: param.Name, Reason: fmt.Sprintf("value %v below minimum %v", f, *param.Min)}
		}
		if param.Max != nil && f > *param.Max {
			return &ta.InvalidParameterError{Name: param.Name, Reason: fmt.Sprintf("value %v above maximum %v", f, *param.Max)}
		}
		if isPeriodParam(param.Name) && f <= 0 {
			return &ta.InvalidParameterError{Name: param.Name, Reason: "period must be positive"}
		}
	}
	return nil
}

func isPeriodParam(name string) bool {
	switch name {
	case "period", "periods", "k_period", "d_period", "fast_period", "slow_period",
		"signal_period", "ema_period", "atr_period", "tenkan_period", "kijun_period",
		"span_b_period", "displacement", "wma_period", "roc_long", "roc_short",
		"left", "right":
		return true
	}
	return false
}

// checkParamRelations enforces cross-parameter constraints such as
// fast < slow.
func checkParamRelations(indicator string, params map[string]float64) error {
	fast, hasFast := params["fast_period"]
	slow, hasSlow := params["slow_period"]
	if hasFast && hasSlow && fast >= slow {
		return &ta.InvalidParameterError{
			Name:   "fast_period",
			Reason: fmt.Sprintf("fast period %v must be less than slow period %v", fast, slow),
		}
	}
	if shift, ok := params["periods"]; ok && shift < 0 {
		return &ta.InvalidParameterError{Name: "periods", Reason: "negative shifts are not allowed"}
	}
	return nil
}

func (c *checker) checkFilter(n *ir.Filter) error {
	switch cond := n.Condition.(type) {
	case *ir.BinaryOp:
		if !ta.IsComparisonOp(cond.Op) {
			return &ta.TypeCheckError{
				NodeKind: "filter",
				Expected: "a comparison or logical condition",
				Actual:   "operator '" + cond.Op + "'",
			}
		}
	case *ir.UnaryOp:
		if cond.Op != ta.OpNot {
			return &ta.TypeCheckError{NodeKind: "filter", Expected: "a boolean condition", Actual: "operator '" + cond.Op + "'"}
		}
	case *ir.Literal:
		if _, ok := cond.Value.(bool); !ok {
			return &ta.TypeCheckError{NodeKind: "filter", Expected: "a boolean condition", Actual: fmt.Sprintf("literal %v", cond.Value)}
		}
	case *ir.Call, *ir.Filter:
		// Event indicators and nested filters produce flags.
	default:
		return &ta.TypeCheckError{NodeKind: "filter", Expected: "a boolean condition", Actual: cond.Kind()}
	}
	return nil
}

func (c *checker) checkAggregate(n *ir.Aggregate) error {
	switch n.Op {
	case "sum", "avg", "max", "min", "count":
	default:
		return &ta.TypeCheckError{NodeKind: "aggregate", Expected: "sum, avg, max, min, or count", Actual: n.Op}
	}
	if ref, ok := n.Series.(*ir.SourceRef); ok {
		field := n.Field
		if field == "" {
			field = ref.Field
		}
		if field != "" && !ta.ValidSourceField(ref.Source, field) {
			return &ta.UnknownFieldError{Source: ref.Source, Field: field}
		}
	}
	return nil
}

func (c *checker) checkTimeShift(n *ir.TimeShift) error {
	switch n.Op {
	case "", "change", "change_pct":
		if n.DurationMS <= 0 {
			return &ta.InvalidParameterError{Name: "shift", Reason: "time shift must be a positive duration"}
		}
	case "roc":
		if n.Periods <= 0 {
			return &ta.InvalidParameterError{Name: "shift", Reason: "roc shift must be a positive period count"}
		}
	default:
		return &ta.TypeCheckError{NodeKind: "time_shift", Expected: "change, change_pct, or roc", Actual: n.Op}
	}
	return nil
}

func (c *checker) checkMemberAccess(n *ir.MemberAccess) error {
	if call, ok := n.Expr.(*ir.Call); ok {
		spec, err := c.reg.Lookup(call.Name)
		if err != nil {
			return err
		}
		if spec.Output(n.Member) == nil {
			return &ta.TypeCheckError{
				NodeKind: call.Name,
				Expected: fmt.Sprintf("one of outputs %v", spec.OutputNames()),
				Actual:   "'" + n.Member + "'",
			}
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
