package engine

import (
	"github.com/laakhay/ta/ta/expr"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/planner"
	"github.com/laakhay/ta/ta/registry"
	"github.com/laakhay/ta/ta/typecheck"
)

// Compile runs the full front half of the pipeline: parse the
// expression text, typecheck the IR, and build the plan. Errors are
// raised eagerly, before any execution.
func Compile(text string, reg *registry.Registry, opts planner.Options) (*planner.Plan, error) {
	parser := expr.NewParser(reg)
	node, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := typecheck.Check(node, reg); err != nil {
		return nil, err
	}
	return planner.NewPlanner(reg, opts).Plan(node)
}

// CompileIR typechecks and plans an already-built IR tree, for hosts
// that construct expressions programmatically.
func CompileIR(node ir.Node, reg *registry.Registry, opts planner.Options) (*planner.Plan, error) {
	if err := typecheck.Check(node, reg); err != nil {
		return nil, err
	}
	return planner.NewPlanner(reg, opts).Plan(node)
}
