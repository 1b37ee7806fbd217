package engine

import (
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/kernel"
	"github.com/laakhay/ta/ta/registry"
)

// resolveParams merges a call's literal kwargs over the spec's
// defaults into the parameter map handed to the kernel factory. The
// typechecker has already validated types and ranges.
func resolveParams(spec *registry.IndicatorSpec, call *ir.Call) kernel.Params {
	params := make(kernel.Params, len(spec.Params))
	for _, p := range spec.Params {
		if p.Default != nil {
			params[p.Name] = p.Default
		}
	}
	for name, node := range call.Kwargs {
		canonical := spec.ResolveParamAlias(name)
		if lit, ok := node.(*ir.Literal); ok {
			params[canonical] = lit.Value
		}
	}
	return params
}

// newKernel constructs the kernel instance for a call node.
func newKernel(spec *registry.IndicatorSpec, call *ir.Call) (kernel.Kernel, error) {
	return kernel.New(spec.KernelID, resolveParams(spec, call))
}
