package buildenv

import (
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/target"
)

// CollectDependencySet performs the post-order DFS of spec.md §4.5
// "Dependency set collection": for root, visit uses-mapping resolvers
// first, then declared dependencies (resolving any that aren't already),
// recording the dependent as a reverse-edge on every child of the
// resolved dependency's subtree, then visit root's own children. root is
// appended last. The result is deps-before-dependents, deduplicated.
func (e *Environment) CollectDependencySet(root *target.Target) ([]*target.Target, error) {
	visited := make(map[string]bool)
	var order []*target.Target

	var visit func(t *target.Target) error
	visit = func(t *target.Target) error {
		if visited[t.Module] {
			return nil
		}

		for _, dep := range t.UsesMapping {
			resolvedDep, err := e.resolveDependencyRef(t, dep)
			if err != nil {
				return err
			}
			if err := visitResolved(visit, t, resolvedDep); err != nil {
				return err
			}
		}

		for _, dep := range t.Dependencies {
			resolvedDep, err := e.resolveDependencyRef(t, dep)
			if err != nil {
				return err
			}
			if err := visitResolved(visit, t, resolvedDep); err != nil {
				return err
			}
		}

		for _, child := range t.Children {
			if err := visit(child); err != nil {
				return err
			}
		}

		if !visited[t.Module] {
			visited[t.Module] = true
			order = append(order, t)
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

func visitResolved(visit func(*target.Target) error, dependent *target.Target, resolved *target.Target) error {
	if resolved == nil {
		return nil
	}
	if err := visit(resolved); err != nil {
		return err
	}
	resolved.AddDependent(dependent)
	for _, c := range resolved.ChildSet() {
		c.AddDependent(dependent)
	}
	return nil
}

// CollectResolvedDependencySet is the no-resolve variant of
// CollectDependencySet: it walks only already-resolved dependencies,
// failing with UncachedDependencyException instead of fetching anything.
// Used where auto-fetch is disabled (spec.md §7 UncachedDependencyException).
func (e *Environment) CollectResolvedDependencySet(root *target.Target) ([]*target.Target, error) {
	visited := make(map[string]bool)
	var order []*target.Target

	var visit func(t *target.Target) error
	visit = func(t *target.Target) error {
		if visited[t.Module] {
			return nil
		}

		for _, dep := range t.UsesMapping {
			if err := e.visitResolvedOnly(visit, t, dep); err != nil {
				return err
			}
		}
		for _, dep := range t.Dependencies {
			if err := e.visitResolvedOnly(visit, t, dep); err != nil {
				return err
			}
		}
		for _, child := range t.Children {
			if err := visit(child); err != nil {
				return err
			}
		}

		if !visited[t.Module] {
			visited[t.Module] = true
			order = append(order, t)
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

func (e *Environment) visitResolvedOnly(visit func(*target.Target) error, dependent *target.Target, dep *depstring.TargetDependency) error {
	if len(dep.Resolved) == 0 {
		return errs.UncachedDependency(dependent.Module, "dependency %q is not yet resolved and auto-fetch is disabled", dep.Raw)
	}
	resolved, ok := e.Modules[dep.Resolved[0]]
	if !ok {
		return errs.UncachedDependency(dependent.Module, "dependency %q resolved to unknown module %q", dep.Raw, dep.Resolved[0])
	}
	return visitResolved(visit, dependent, resolved)
}

// resolveDependencyRef returns the concrete Target for dep, reusing the
// cached resolution in dep.Resolved when present (spec.md §3 invariant: "a
// dependency with non-empty resolved is considered done and not
// re-resolved") and invoking the dispatcher otherwise.
func (e *Environment) resolveDependencyRef(from *target.Target, dep *depstring.TargetDependency) (*target.Target, error) {
	if len(dep.Resolved) > 0 {
		if t, ok := e.Modules[dep.Resolved[0]]; ok {
			return t, nil
		}
	}
	return e.ResolveDependency(from, dep)
}
