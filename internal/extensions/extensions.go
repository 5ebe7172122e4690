// Package extensions implements the ordered plugin-resolution registry
// spec.md section 9 calls for in place of entry-point discovery: an
// installation names its extensions, in priority order, via the
// EXTENSIONS environment variable; callers look up an implementation by
// (group, name) and get back the highest-priority registration. The
// registry is the sole indirection point — nothing here swaps
// implementations at runtime once built.
package extensions

import "fmt"

// Registry resolves (group, name) pairs to the highest-priority
// registered implementation, where priority is the position of the
// owning extension in the installation's EXTENSIONS list (earlier wins).
type Registry struct {
	priority map[string]int
	impls    map[key]entry
}

type key struct {
	group string
	name  string
}

type entry struct {
	extension string
	priority  int
	value     any
}

// New builds a Registry whose extension priority order is extensionOrder
// (spec.md section 9: "built at startup from the EXTENSIONS env var").
// The base installation itself should be registered under a reserved
// extension name (conventionally "base") occupying the lowest priority
// unless it also appears in extensionOrder.
func New(extensionOrder []string) *Registry {
	r := &Registry{
		priority: make(map[string]int, len(extensionOrder)),
		impls:    make(map[key]entry),
	}
	for i, name := range extensionOrder {
		r.priority[name] = i
	}
	return r
}

// Register adds an implementation for (group, name) contributed by
// extension. If extension isn't present in the configured order it is
// treated as lowest priority, so out-of-tree code registering without
// being listed in EXTENSIONS never silently overrides a configured one.
func (r *Registry) Register(group, name, extension string, value any) {
	p, ok := r.priority[extension]
	if !ok {
		p = len(r.priority)
	}
	k := key{group: group, name: name}
	if existing, ok := r.impls[k]; ok && existing.priority <= p {
		return
	}
	r.impls[k] = entry{extension: extension, priority: p, value: value}
}

// Resolve returns the highest-priority implementation registered for
// (group, name), and whether one was found.
func (r *Registry) Resolve(group, name string) (any, bool) {
	e, ok := r.impls[key{group: group, name: name}]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// MustResolve is Resolve but panics with a descriptive message instead
// of returning ok=false, for startup-time wiring where a missing
// extension point is a configuration error rather than a request-time
// condition.
func (r *Registry) MustResolve(group, name string) any {
	v, ok := r.Resolve(group, name)
	if !ok {
		panic(fmt.Sprintf("extensions: no implementation registered for %s/%s", group, name))
	}
	return v
}
