// Package resolvers implements the namespaced dependency resolver registry
// and the concrete resolvers of spec.md §4.5/§6.3: local filesystem
// fetches, VCS checkouts, external package-manager shelling, and
// architecture coercion.
package resolvers

import (
	"fmt"

	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/osdeverr/rebs/internal/target"
)

// Resolver is the per-namespace contract of spec.md §6.3/§4.5.
type Resolver interface {
	// Resolve converts dep into a concrete Target, possibly fetching or
	// generating it. Fails with a DependencyException.
	Resolve(from *target.Target, dep *depstring.TargetDependency, cache *semverselect.Cache) (*target.Target, error)
}

// CoercedResolver is implemented by resolvers that support architecture
// coercion (creating an arch-variant Target from an already-resolved one).
type CoercedResolver interface {
	ResolveCoerced(from *target.Target, existing *target.Target) (*target.Target, error)
}

// PathSaver is implemented by resolvers that can materialize a dependency
// onto a fixed path for global-package installation (spec.md §6.6).
type PathSaver interface {
	SaveToPath(dep *depstring.TargetDependency, targetDir string) (bool, error)
}

// FilterHandler is implemented by resolvers that apply subtarget filters
// themselves, so the dispatcher should not apply them again.
type FilterHandler interface {
	HandlesFilters() bool
}

// Registry dispatches by namespace, modeled on the factory-map
// Register/New pattern the rest of the corpus uses for pluggable backends.
type Registry struct {
	byNamespace map[string]Resolver
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byNamespace: make(map[string]Resolver)}
}

// Register binds a Resolver to a namespace ("git", "github", "fs", "conan",
// "arch-coerced", ...).
func (r *Registry) Register(namespace string, resolver Resolver) {
	r.byNamespace[namespace] = resolver
}

// Lookup returns the resolver bound to namespace, if any.
func (r *Registry) Lookup(namespace string) (Resolver, bool) {
	res, ok := r.byNamespace[namespace]
	return res, ok
}

// MustLookup is Lookup but returns a descriptive error instead of ok=false.
func (r *Registry) MustLookup(namespace string) (Resolver, error) {
	res, ok := r.byNamespace[namespace]
	if !ok {
		return nil, fmt.Errorf("no dependency resolver registered for namespace %q", namespace)
	}
	return res, nil
}
