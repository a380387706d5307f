package source

import (
	"sort"

	"github.com/rotisserie/eris"
)

// ErrUnknownAdapter is returned by Create for unregistered names.
var ErrUnknownAdapter = eris.New("source: unknown adapter")

// Factory builds an adapter from shared deps and per-job options.
type Factory func(deps Deps, opts Options) (Adapter, error)

// Registry maps adapter names to their factories.
type Registry struct {
	factories map[string]Factory
	order     []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry populated with the four built-in
// adapter kinds.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("research", NewResearch)
	r.Register("corporate", NewCorporate)
	r.Register("regulator", NewRegulator)
	r.Register("media", NewMedia)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Create builds the adapter registered under name.
func (r *Registry) Create(name string, deps Deps, opts Options) (Adapter, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownAdapter, "source: create %q", name)
	}
	a, err := f(deps, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "source: create %q", name)
	}
	return a, nil
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Origins returns the built-in origin names for an adapter kind, sorted.
func Origins(kind string) []string {
	var m map[string]origin
	switch kind {
	case "research":
		m = researchOrigins
	case "corporate":
		m = corporateOrigins
	case "regulator":
		m = regulatorOrigins
	case "media":
		m = mediaOrigins
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
