package container

import "sort"

// Registry holds the backends available to the launcher, keyed by name.
// Unlike the Python original's import-time BACKENDS/MIMES globals, nothing
// is registered until a caller explicitly constructs a Registry and calls
// Register — so a test or a restricted build can assemble exactly the
// backend set it wants, and import order never matters.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds d under its own Name(), overwriting any previous entry for
// that name.
func (r *Registry) Register(d Driver) {
	r.drivers[d.Name()] = d
}

// Get looks up a backend by name.
func (r *Registry) Get(name string) (Driver, bool) {
	d, ok := r.drivers[name]
	return d, ok
}

// Available returns the registered backends that report themselves usable
// on this host, sorted by name.
func (r *Registry) Available() []Driver {
	var out []Driver
	for _, name := range r.names() {
		if d := r.drivers[name]; d.Available() {
			out = append(out, d)
		}
	}
	return out
}

// Exposed returns the registered backends meant to be shown in --help and
// completion, sorted by name.
func (r *Registry) Exposed() []Driver {
	var out []Driver
	for _, name := range r.names() {
		if d := r.drivers[name]; d.Exposed() {
			out = append(out, d)
		}
	}
	return out
}

// Guess returns the first registered backend (sorted by name, for
// determinism) whose Guesser claims imagePath, or false if none does or
// the backend does not implement Guesser.
func (r *Registry) Guess(imagePath string) (Driver, bool) {
	for _, name := range r.names() {
		d := r.drivers[name]
		if g, ok := d.(Guesser); ok && g.Guess(imagePath) {
			return d, true
		}
	}
	return nil, false
}

func (r *Registry) names() []string {
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
