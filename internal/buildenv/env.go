// Package buildenv implements the Build Environment of spec.md §4.6: the
// owner of every loaded target, the dependency resolution dispatcher of
// §4.5, the dependency-set collectors, and the action/task/install flows.
package buildenv

import (
	"strings"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	rexec "github.com/osdeverr/rebs/internal/exec"
	"github.com/osdeverr/rebs/internal/resolvers"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
)

// LoadMiddleware is spec.md §6.2's Target Load Middleware contract.
type LoadMiddleware interface {
	Supports(path string) bool
	Load(fs afero.Fs, path string, ancestor *target.Target) (*target.Target, error)
}

// Environment owns every loaded Target, the resolver registry, the version
// cache, and the registered load middlewares.
type Environment struct {
	Fs     afero.Fs
	Loader *yamlconfig.Loader

	Modules     map[string]*target.Target
	CoreProject *target.Target
	Roots       []*target.Target

	Middlewares []LoadMiddleware
	Resolvers   *resolvers.Registry
	Versions    *semverselect.Cache

	// Exec runs the external processes behind "run"/"shell-run" actions.
	// Swappable in tests for a fake that records invocations instead of
	// spawning real processes.
	Exec rexec.Executor

	// Ctx is the run's resolved arch/platform/config selection (spec.md
	// §4.2), set by the caller once params/CLI flags are known. Every
	// target's build scope is seeded from it lazily, the first time the
	// target takes part in dependency resolution, so arch coercion
	// (maybeCoerceArch) sees real values instead of the empty scope a
	// freshly loaded or freshly resolved target starts with.
	Ctx cfgresolve.Context
}

// New builds an empty Environment backed by fs.
func New(fs afero.Fs, loader *yamlconfig.Loader) *Environment {
	return &Environment{
		Fs:        fs,
		Loader:    loader,
		Modules:   make(map[string]*target.Target),
		Resolvers: resolvers.NewRegistry(),
		Versions:  semverselect.NewCache(),
		Exec:      rexec.NewCommandExecutor(),
	}
}

// RegisterMiddleware appends a load middleware to the chain.
func (e *Environment) RegisterMiddleware(m LoadMiddleware) {
	e.Middlewares = append(e.Middlewares, m)
}

// LoadCoreProject loads the platform-provided base project that becomes
// the default parent of every root target. It must be called before
// LoadRoot (spec.md §4.6 "Core target").
func (e *Environment) LoadCoreProject(path string) error {
	core, err := e.loadAt(path, nil)
	if err != nil {
		return err
	}
	if err := core.LoadSourceTree(e.Fs, e.Loader, nil); err != nil {
		return err
	}
	if err := e.Register(core); err != nil {
		return err
	}
	e.CoreProject = core
	return nil
}

// LoadRoot loads a user root target at path, parented by the core project
// if one has been loaded.
func (e *Environment) LoadRoot(path string) (*target.Target, error) {
	root, err := e.loadAt(path, e.CoreProject)
	if err != nil {
		return nil, err
	}
	if err := root.LoadSourceTree(e.Fs, e.Loader, nil); err != nil {
		return nil, err
	}
	if err := e.Register(root); err != nil {
		return nil, err
	}
	e.Roots = append(e.Roots, root)
	return root, nil
}

func (e *Environment) loadAt(path string, ancestor *target.Target) (*target.Target, error) {
	for _, m := range e.Middlewares {
		if m.Supports(path) {
			return m.Load(e.Fs, path, ancestor)
		}
	}
	return target.LoadFromDirectory(e.Fs, e.Loader, path, ancestor)
}

// Register recursively inserts t and every descendant into the module map.
// A duplicate module fails with LoadException (spec.md §4.6 "Target
// registration invariant").
func (e *Environment) Register(t *target.Target) error {
	if _, exists := e.Modules[t.Module]; exists {
		return errs.Load(t.Module, "duplicate module %q", t.Module)
	}
	e.Modules[t.Module] = t

	for _, child := range t.Children {
		if err := e.Register(child); err != nil {
			return err
		}
	}
	return nil
}

// ResolveDependency implements the dispatch algorithm of spec.md §4.5 for
// converting a parsed dependency record into a concrete Target.
func (e *Environment) ResolveDependency(from *target.Target, dep *depstring.TargetDependency) (*target.Target, error) {
	var resolved *target.Target
	var handledFilters bool
	var err error

	switch {
	case dep.Ns == "":
		resolved, err = e.resolveLocal(from, dep)

	case dep.Ns == "uses":
		resolved, handledFilters, err = e.resolveUses(from, dep)

	default:
		resolver, lookupErr := e.Resolvers.MustLookup(dep.Ns)
		if lookupErr != nil {
			return nil, errs.Dependency(from.Module, "%s", lookupErr.Error())
		}
		resolved, err = resolver.Resolve(from, dep, e.Versions)
		if err == nil {
			if fh, ok := resolver.(resolvers.FilterHandler); ok {
				handledFilters = fh.HandlesFilters()
			}
		}
	}

	if err != nil {
		return nil, err
	}

	e.seedBuildScope(from)
	e.seedBuildScope(resolved)

	resolved, err = e.maybeCoerceArch(from, resolved)
	if err != nil {
		return nil, err
	}

	resolved, err = e.maybeApplyExtraConfig(dep, resolved)
	if err != nil {
		return nil, err
	}

	if !handledFilters {
		resolved, err = applySubtargetFilters(resolved, dep.SubtargetFilters())
		if err != nil {
			return nil, err
		}
	}

	dep.Resolved = append(dep.Resolved, resolved.Module)
	return resolved, nil
}

func (e *Environment) resolveLocal(from *target.Target, dep *depstring.TargetDependency) (*target.Target, error) {
	resolved, ok := e.Modules[dep.Name]
	if !ok {
		return nil, errs.Dependency(from.Module, "unresolved local dependency %q", dep.Name)
	}
	return resolved, nil
}

// resolveUses walks from's ancestor chain for a uses-mapping entry named
// dep.Name, recursively resolves it, and intersects filters if dep refines
// the original mapping's filters.
func (e *Environment) resolveUses(from *target.Target, dep *depstring.TargetDependency) (*target.Target, bool, error) {
	var mapped *depstring.TargetDependency
	for cur := from; cur != nil; cur = cur.Parent {
		if d, ok := cur.UsesMapping[dep.Name]; ok {
			mapped = d
			break
		}
	}
	if mapped == nil {
		return nil, false, errs.Dependency(from.Module, "no uses-mapping entry named %q", dep.Name)
	}

	resolved, err := e.ResolveDependency(from, mapped)
	if err != nil {
		return nil, false, err
	}

	filters, err := intersectFilters(mapped.SubtargetFilters(), dep.SubtargetFilters())
	if err != nil {
		return nil, false, errs.Dependency(from.Module, "uses %q: %s", dep.Name, err.Error())
	}

	resolved, err = applySubtargetFilters(resolved, filters)
	if err != nil {
		return nil, false, err
	}
	return resolved, true, nil
}

// seedBuildScope sets t's build scope arch/platform/configuration from the
// run context the first time t is seen, mirroring the defaults
// assembler.linkEnvInit applies at assembly time (spec.md §4.3's invariant
// that build scope is populated "before language providers run" extends
// naturally to dependency resolution, since arch coercion also reads it).
// A key already resolvable locally or via the parent chain is left alone,
// so it never overwrites a value a test or an earlier seed already set.
func (e *Environment) seedBuildScope(t *target.Target) {
	if t == nil || t.BuildScope == nil {
		return
	}

	seedIfAbsent(t, "arch", e.Ctx["arch"], "host")
	seedIfAbsent(t, "platform", e.Ctx["platform"], "host")
	seedIfAbsent(t, "configuration", e.Ctx["config"], "debug")
}

func seedIfAbsent(t *target.Target, key, ctxValue, fallback string) {
	if _, ok := t.BuildScope.Get(key); ok {
		return
	}
	t.BuildScope.Set(key, firstNonEmpty(ctxValue, fallback))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (e *Environment) maybeCoerceArch(from, dep *target.Target) (*target.Target, error) {
	fromArch, _ := from.BuildScope.Get("arch")
	depArch, _ := dep.BuildScope.Get("arch")
	if fromArch == "" || depArch == "" || fromArch == depArch {
		return dep, nil
	}

	coercer, ok := e.Resolvers.Lookup("arch-coerced")
	if !ok {
		return nil, errs.Load(from.Module, "arch mismatch (%s vs %s) resolving %q, no arch-coerced resolver registered", fromArch, depArch, dep.Module)
	}

	coercedResolver, ok := coercer.(resolvers.CoercedResolver)
	if !ok {
		return nil, errs.Load(from.Module, "arch-coerced resolver does not implement coercion")
	}

	return coercedResolver.ResolveCoerced(from, dep)
}

func (e *Environment) maybeApplyExtraConfig(dep *depstring.TargetDependency, resolved *target.Target) (*target.Target, error) {
	if dep.ExtraConfig == nil {
		return resolved, nil
	}

	module := resolved.Module + ".ecfg-" + dep.ExtraConfigHash
	if existing, ok := e.Modules[module]; ok {
		return existing, nil
	}

	merged := cfgresolve.Merge(resolved.Config, dep.ExtraConfig)
	clone := target.New(resolved.Path, resolved.Name, resolved.Type, merged, resolved.Parent)
	clone.Module = module

	if err := e.Register(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// applySubtargetFilters navigates dotted filter segments via child lookup
// by name, each segment required.
func applySubtargetFilters(t *target.Target, filters []string) (*target.Target, error) {
	cur := t
	for _, filter := range filters {
		for _, part := range strings.Split(filter, ".") {
			found := findChild(cur, part)
			if found == nil {
				return nil, errs.Dependency(t.Module, "subtarget filter %q: no child named %q", filter, part)
			}
			cur = found
		}
	}
	return cur, nil
}

func findChild(t *target.Target, name string) *target.Target {
	for _, c := range t.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// intersectFilters computes the filter-refinement intersection of spec.md
// §4.5 "Subtarget filters": refinement must be a subset of original
// (or original is empty, meaning unconstrained).
func intersectFilters(original, refinement []string) ([]string, error) {
	if len(original) == 0 {
		return refinement, nil
	}
	if len(refinement) == 0 {
		return original, nil
	}

	originalSet := make(map[string]bool, len(original))
	for _, f := range original {
		originalSet[f] = true
	}
	for _, f := range refinement {
		if !originalSet[f] {
			return nil, errs.Dependency("", "filter %q is not a subset of the uses-mapping's filters", f)
		}
	}
	return refinement, nil
}
