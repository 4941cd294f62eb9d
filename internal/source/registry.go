package source

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/driver"
)

// Factory builds a fresh adapter bound to a page driver. Adapters are
// per-session, so the registry stores constructors rather than instances.
type Factory func(d driver.PageDriver) Adapter

// Registry maps source names to adapter factories. Registration order is
// preserved so multi-source runs iterate deterministically.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a duplicate name is a
// programming error and returns one.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return eris.Errorf("source %q already registered", name)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

// New builds an adapter for name using d.
func (r *Registry) New(name string, d driver.PageDriver) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Errorf("unknown source %q (registered: %v)", name, r.Names())
	}
	return f(d), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedNames returns the registered names alphabetically, for display.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in adapter.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("ungm", func(d driver.PageDriver) Adapter { return NewUNGM(d) })
	_ = r.Register("dgmarket", func(d driver.PageDriver) Adapter { return NewDGMarket(d) })
	return r
}
