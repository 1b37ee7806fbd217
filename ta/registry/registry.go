package registry

import (
	"fmt"
	"sort"

	ta "github.com/laakhay/ta/ta"
)

// Registry maps indicator names and aliases to frozen specs. It is
// built once at startup and read-only afterwards; no locks are taken
// on the lookup path.
type Registry struct {
	indicators map[string]*IndicatorSpec
	aliases    map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		indicators: make(map[string]*IndicatorSpec),
		aliases:    make(map[string]string),
	}
}

// Register validates and adds a spec. Aliases must not collide with
// canonical names or other aliases.
func (r *Registry) Register(spec *IndicatorSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	if _, exists := r.indicators[spec.Name]; exists {
		return fmt.Errorf("indicator '%s' already registered", spec.Name)
	}
	if target, exists := r.aliases[spec.Name]; exists {
		return fmt.Errorf("indicator '%s' collides with alias of '%s'", spec.Name, target)
	}
	for _, alias := range spec.Aliases {
		if _, exists := r.indicators[alias]; exists {
			return fmt.Errorf("alias '%s' conflicts with existing indicator", alias)
		}
		if target, exists := r.aliases[alias]; exists {
			return fmt.Errorf("alias '%s' already registered for '%s'", alias, target)
		}
	}
	r.indicators[spec.Name] = spec
	for _, alias := range spec.Aliases {
		r.aliases[alias] = spec.Name
	}
	return nil
}

// MustRegister is Register that panics; used by NewDefault where the
// catalog is static.
func (r *Registry) MustRegister(spec *IndicatorSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup resolves a name or alias to its spec.
func (r *Registry) Lookup(name string) (*IndicatorSpec, error) {
	if spec, ok := r.indicators[name]; ok {
		return spec, nil
	}
	if canonical, ok := r.aliases[name]; ok {
		return r.indicators[canonical], nil
	}
	return nil, &ta.UnknownIndicatorError{Name: name}
}

// Has reports whether a name or alias resolves.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns all canonical names and aliases, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.indicators)+len(r.aliases))
	for name := range r.indicators {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// Indicators returns the canonical names, sorted.
func (r *Registry) Indicators() []string {
	names := make([]string, 0, len(r.indicators))
	for name := range r.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
