// Package profile holds the ordered registry of test domains and the
// configuration context each one runs under.
package profile

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateDomain is returned when a name is registered twice.
	ErrDuplicateDomain = errors.New("duplicate domain")
	// ErrInvalidDomain is returned for a domain without a name.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrUnknownDomain is returned when a selected name is not registered.
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrFrozen is returned when registering into a frozen registry.
	ErrFrozen = errors.New("registry is frozen")
)

// ConfigContext is the external configuration profile a domain runs
// under. It is opaque to the orchestrator; only the suite runner turns
// it into process arguments and environment.
type ConfigContext struct {
	Settings string            `json:"settings,omitempty" yaml:"settings"` // settings module or path, e.g. settings_core
	Env      map[string]string `json:"env,omitempty" yaml:"env"`
}

// IsZero reports whether the context carries no configuration at all.
func (c ConfigContext) IsZero() bool {
	return c.Settings == "" && len(c.Env) == 0
}

// Domain is one named, independently configured test suite.
type Domain struct {
	Name    string
	Context ConfigContext

	Targets []string      // test targets handed to the suite command
	Command []string      // overrides the configured command when set
	Dir     string        // working directory, relative to the workspace
	Timeout time.Duration // overrides the runner timeout when > 0
}

// Registry is an ordered set of domains keyed by name.
type Registry struct {
	domains []Domain
	index   map[string]int
	frozen  bool
}

// NewRegistry returns an empty, mutable registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a domain with the given name and configuration context.
func (r *Registry) Register(name string, ctx ConfigContext) error {
	return r.Add(Domain{Name: name, Context: ctx})
}

// Add registers a fully described domain. On error the registry is
// left unchanged.
func (r *Registry) Add(d Domain) error {
	if r.frozen {
		return fmt.Errorf("registering %q: %w", d.Name, ErrFrozen)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDomain)
	}
	if _, ok := r.index[d.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateDomain, d.Name)
	}
	r.index[d.Name] = len(r.domains)
	r.domains = append(r.domains, d)
	return nil
}

// List returns the domains in registration order.
func (r *Registry) List() []Domain {
	out := make([]Domain, len(r.domains))
	copy(out, r.domains)
	return out
}

// Len returns the number of registered domains.
func (r *Registry) Len() int {
	return len(r.domains)
}

// Lookup returns the domain registered under name.
func (r *Registry) Lookup(name string) (Domain, bool) {
	i, ok := r.index[name]
	if !ok {
		return Domain{}, false
	}
	return r.domains[i], true
}

// Freeze prevents further registration. It is idempotent.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.domains))
	for i, d := range r.domains {
		out[i] = d.Name
	}
	return out
}

// Select returns a frozen registry holding only the named domains, in
// their original registration order.
func (r *Registry) Select(names ...string) (*Registry, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.index[n]; !ok {
			return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDomain, n, r.Names())
		}
		want[n] = true
	}

	sel := NewRegistry()
	for _, d := range r.domains {
		if want[d.Name] {
			// Names are already unique here.
			_ = sel.Add(d)
		}
	}
	sel.Freeze()
	return sel, nil
}
