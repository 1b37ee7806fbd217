// Package registry holds the indicator catalog: frozen specs
// describing each indicator's parameters, inputs, outputs, semantics,
// and kernel binding, plus the registry that resolves names and
// aliases for the parser, typechecker, planner, and engine.
package registry

import "fmt"

// ParamType enumerates parameter value types.
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
	ParamBool   ParamType = "bool"
	ParamSeries ParamType = "series"
)

// ParamSpec describes one indicator parameter.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Default  interface{} // nil means no default
	Required bool
	Min      *float64
	Max      *float64
	Enum     []string
}

// OutputSpec describes one named indicator output.
type OutputSpec struct {
	Name        string
	Role        string // "line", "band", "level", "flag"
	Polarity    string // "high", "low", or ""
	Description string
}

// InputSlot describes a parameter position that accepts a full
// expression rather than a literal.
type InputSlot struct {
	Name          string
	Required      bool
	DefaultSource string
	DefaultField  string
}

// Semantics captures the data requirements the planner reads.
type Semantics struct {
	RequiredFields  []string
	OptionalFields  []string
	LookbackParams  []string
	DefaultLookback int
}

// IndicatorSpec is the frozen description of one indicator. Params
// keep declaration order because positional arguments bind in order.
type IndicatorSpec struct {
	Name         string
	Description  string
	Category     string
	Inputs       []InputSlot
	Params       []ParamSpec
	Outputs      []OutputSpec
	Semantics    Semantics
	KernelID     string
	Aliases      []string
	ParamAliases map[string]string
}

// Param returns the parameter spec by canonical name, or nil.
func (s *IndicatorSpec) Param(name string) *ParamSpec {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i]
		}
	}
	return nil
}

// HasInputSlot reports whether the indicator accepts an expression as
// its input series.
func (s *IndicatorSpec) HasInputSlot() bool { return len(s.Inputs) > 0 }

// Output returns the output spec by name, or nil.
func (s *IndicatorSpec) Output(name string) *OutputSpec {
	for i := range s.Outputs {
		if s.Outputs[i].Name == name {
			return &s.Outputs[i]
		}
	}
	return nil
}

// OutputNames lists output names in declaration order.
func (s *IndicatorSpec) OutputNames() []string {
	names := make([]string, len(s.Outputs))
	for i, o := range s.Outputs {
		names[i] = o.Name
	}
	return names
}

// ResolveParamAlias maps a parameter alias to its canonical name.
func (s *IndicatorSpec) ResolveParamAlias(name string) string {
	if canonical, ok := s.ParamAliases[name]; ok {
		return canonical
	}
	return name
}

// validate enforces the registration rules: defaults respect valid
// values, required parameters have no default, output names are
// unique, and every lookback parameter is declared.
func (s *IndicatorSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("indicator name must be non-empty")
	}
	if len(s.Outputs) == 0 {
		return fmt.Errorf("indicator '%s' declares no outputs", s.Name)
	}
	seen := make(map[string]bool, len(s.Outputs))
	for _, out := range s.Outputs {
		if seen[out.Name] {
			return fmt.Errorf("indicator '%s' has duplicate output '%s'", s.Name, out.Name)
		}
		seen[out.Name] = true
	}
	for _, p := range s.Params {
		if p.Required && p.Default != nil {
			return fmt.Errorf("indicator '%s' parameter '%s' is required but has a default", s.Name, p.Name)
		}
		if p.Default != nil {
			if err := checkParamValue(p, p.Default); err != nil {
				return fmt.Errorf("indicator '%s': default for '%s': %w", s.Name, p.Name, err)
			}
		}
	}
	for _, lb := range s.Semantics.LookbackParams {
		if s.Param(lb) == nil {
			return fmt.Errorf("indicator '%s' lookback parameter '%s' is not declared", s.Name, lb)
		}
	}
	for alias, canonical := range s.ParamAliases {
		if s.Param(canonical) == nil {
			return fmt.Errorf("indicator '%s' parameter alias '%s' targets unknown '%s'", s.Name, alias, canonical)
		}
	}
	return nil
}

// checkParamValue verifies a concrete value against a parameter spec.
func checkParamValue(p ParamSpec, value interface{}) error {
	switch p.Type {
	case ParamInt, ParamFloat:
		var f float64
		switch v := value.(type) {
		case int:
			f = float64(v)
		case float64:
			f = v
			if p.Type == ParamInt && f != float64(int(f)) {
				return fmt.Errorf("expected int, got %v", v)
			}
		default:
			return fmt.Errorf("expected %s, got %T", p.Type, value)
		}
		if p.Min != nil && f < *p.Min {
			return fmt.Errorf("value %v below minimum %v", f, *p.Min)
		}
		if p.Max != nil && f > *p.Max {
			return fmt.Errorf("value %v above maximum %v", f, *p.Max)
		}
	case ParamString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(p.Enum) > 0 {
			for _, e := range p.Enum {
				if e == s {
					return nil
				}
			}
			return fmt.Errorf("value '%s' not in %v", s, p.Enum)
		}
	case ParamBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	}
	return nil
}

func minOf(v float64) *float64 { return &v }
