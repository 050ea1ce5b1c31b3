package source

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a registry confirms it has no record for the
// parcel. It is not a failure: callers record it and schedule the next check
// later than they would after an error.
var ErrNotFound = eris.New("source: no record")

// Adapter fetches one registry's partial record for a parcel.
//
// Fetch returns exactly one of: a Patch, ErrNotFound, or an error. Transient
// errors are wrapped via resilience.MarkTransient so the caller's retry
// policy can distinguish them from permanent failures.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, bbl string) (*Patch, error)
}

// Registry holds the configured adapters in registration order.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Later registrations with the same name replace
// earlier ones without disturbing the order.
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, eris.Errorf("source: unknown adapter %q", name)
	}
	return a, nil
}

// All returns every adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// Select returns the named adapters in registration order; with no names it
// returns all of them.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.adapters[n]; !ok {
			return nil, eris.Errorf("source: unknown adapter %q", n)
		}
		want[n] = true
	}
	var out []Adapter
	for _, name := range r.order {
		if want[name] {
			out = append(out, r.adapters[name])
		}
	}
	return out, nil
}
