// Package target implements the Target Model of spec.md §4.3: the central
// entity an Environment loads, resolves, and assembles against. Grounded
// on the teacher's internal/seed package (a file-tree-backed entity with
// metadata split across naming/load/validate files) and internal/corpus's
// owning-collection shape, generalized from a fuzzing corpus's seed queue
// to a parent/child target tree with weak dependent back-references.
package target

import (
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/varscope"
)

// Type is one of the five kinds a target's `type` config key may name
// (spec.md §3). Any other value is kept as written (it is not mapped to
// Custom), so a language provider or load middleware can name its own
// synthetic target type without the engine rejecting it.
type Type string

const (
	Project       Type = "project"
	Executable    Type = "executable"
	StaticLibrary Type = "static-library"
	SharedLibrary Type = "shared-library"
	Custom        Type = "custom"
)

// SourceFile is a discovered source path plus its extension (without the
// leading dot), per spec.md §3.
type SourceFile struct {
	Path      string
	Extension string
}

// Target is the central entity of spec.md §3: a loaded directory's
// config, source tree, dependency list, and the scopes a language
// provider populates during assembly.
type Target struct {
	Type Type

	// Path is the target's absolute source directory; Name is the
	// simple (non-dotted) identifier derived from config.name or the
	// directory's base name. Module is the dotted, globally-unique
	// identifier assigned at construction (ModulePathCombine(parent,
	// name)) and is the key the build environment registers this
	// target under; resolvers that synthesize variants overwrite it
	// directly (e.g. "<base>.ecfg-<hash>", "arch-coerced.<arch>.<base>").
	Path   string
	Name   string
	Module string

	// Config is the raw, unflattened configuration tree loaded from
	// re.yml (plus any merged *.re.yml siblings). ResolvedConfig
	// flattens the ancestor chain's Config trees against a build
	// context and caches the result per context.
	Config *cfgresolve.Map

	Parent   *Target
	Children []*Target

	Dependencies []*depstring.TargetDependency
	UsesMapping  map[string]*depstring.TargetDependency
	Sources      []SourceFile

	// Ctx is this target's private variable context (spec.md §4.1);
	// TargetScope and BuildScope are registered into it under the
	// "target" and "build" aliases respectively, each falling back to
	// the corresponding ancestor scope on a local miss.
	Ctx         *varscope.Context
	TargetScope *varscope.Scope
	BuildScope  *varscope.Scope

	dependents   map[string]*Target
	resolvedCfg  map[string]*cfgresolve.Map
}

// New constructs a Target at path, owned by parent (nil for a root
// target). A nil cfg defaults to an empty Map so callers (e.g. the
// arch-coerced resolver's Config.Clone()) never have to nil-check it.
// Module defaults to ModulePathCombine(parent.Module, name); callers that
// need a different module (extra-config variants, arch coercion) assign
// Target.Module directly after construction.
func New(path, name string, typ Type, cfg *cfgresolve.Map, parent *Target) *Target {
	if cfg == nil {
		cfg = cfgresolve.NewMap()
	}

	var parentModule string
	var targetParentScope, buildParentScope varscope.Provider
	if parent != nil {
		parentModule = parent.Module
		if parent.TargetScope != nil {
			targetParentScope = parent.TargetScope
		}
		if parent.BuildScope != nil {
			buildParentScope = parent.BuildScope
		}
	}

	// Each target owns a private variable context (spec.md §4.1); only
	// the TargetScope/BuildScope providers are chained to the parent,
	// not the context itself.
	ctx := varscope.NewContext()
	ctx.Register("env", varscope.EnvNamespace{})

	t := &Target{
		Type:        typ,
		Path:        path,
		Name:        name,
		Module:      ModulePathCombine(parentModule, name),
		Config:      cfg,
		Parent:      parent,
		UsesMapping: make(map[string]*depstring.TargetDependency),
		Ctx:         ctx,
		dependents:  make(map[string]*Target),
		resolvedCfg: make(map[string]*cfgresolve.Map),
	}

	t.TargetScope = varscope.NewScope(ctx, "target", targetParentScope)
	t.BuildScope = varscope.NewScope(ctx, "build", buildParentScope)
	t.TargetScope.Set("name", name)
	t.TargetScope.Set("module", t.Module)
	t.TargetScope.Set("path", path)

	return t
}

// AddChild appends child to t's owned child list. It does not alter
// child.Parent, which is set at construction time (spec.md §3: "every
// non-root Target has a parent owning it").
func (t *Target) AddChild(child *Target) {
	t.Children = append(t.Children, child)
}

// Root walks the parent chain to the ultimate ancestor.
func (t *Target) Root() *Target {
	cur := t
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Chain returns the ancestor chain from the root down to and including t
// (root-first), the order spec.md §4.2's "Full resolution" folds configs
// in.
func (t *Target) Chain() []*Target {
	var rev []*Target
	for cur := t; cur != nil; cur = cur.Parent {
		rev = append(rev, cur)
	}

	chain := make([]*Target, len(rev))
	for i, tg := range rev {
		chain[len(rev)-1-i] = tg
	}
	return chain
}

// AddDependent records dependent as having resolved a dependency edge to
// t, deduplicated by module (spec.md §3 invariant: "for any target t with
// a resolved dep d: d's reverse edge set contains t").
func (t *Target) AddDependent(dependent *Target) {
	if dependent == nil {
		return
	}
	if t.dependents == nil {
		t.dependents = make(map[string]*Target)
	}
	t.dependents[dependent.Module] = dependent
}

// Dependents returns t's reverse-edge set: every target that has resolved
// a dependency onto t.
func (t *Target) Dependents() []*Target {
	out := make([]*Target, 0, len(t.dependents))
	for _, d := range t.dependents {
		out = append(out, d)
	}
	return out
}

// ChildSet returns every descendant of t (not including t itself), per
// DESIGN.md's open-question resolution #6: self-exclusive, since callers
// that want t included already add it separately.
func (t *Target) ChildSet() []*Target {
	var out []*Target
	var walk func(*Target)
	walk = func(cur *Target) {
		for _, c := range cur.Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(t)
	return out
}

// ResolvedConfig flattens t's ancestor chain's raw Config trees against
// ctx (spec.md §4.2 "Full resolution") and caches the result for the
// lifetime of t, keyed by ctx's contents so recomputing with the same
// context yields the identical cached Map (spec.md §3's determinism
// invariant). A conditional branch hitting the "unsupported" sentinel (or
// any other flattening failure) returns the underlying *errs.Exception
// (a ConfigException) unchanged, per spec.md §8.4's conditional-config
// scenario — callers must not collapse it to a generic failure or a bare
// nil. Failed resolutions are not cached, since e.g. a later call with a
// different ctx may well succeed.
func (t *Target) ResolvedConfig(ctx cfgresolve.Context) (*cfgresolve.Map, error) {
	key := ctx.CacheKey()
	if t.resolvedCfg == nil {
		t.resolvedCfg = make(map[string]*cfgresolve.Map)
	}
	if cached, ok := t.resolvedCfg[key]; ok {
		return cached, nil
	}

	chain := t.Chain()
	configs := make([]*cfgresolve.Map, len(chain))
	for i, tg := range chain {
		configs[i] = tg.Config
	}

	resolved, err := cfgresolve.ResolveChain(configs, ctx, cfgresolve.DefaultCategories)
	if err != nil {
		return nil, err
	}

	t.resolvedCfg[key] = resolved
	return resolved, nil
}

// Enabled reports whether t's "enabled" config key resolves to true for
// ctx, defaulting to true when absent or when resolution itself failed
// (DESIGN.md open-question resolution #5: the sole enabled gate is this
// ctx-aware check, applied by the assembler rather than at load time).
// Unlike ResolvedConfig's other callers, Enabled deliberately swallows a
// ConfigException here: a target whose config can't even be evaluated for
// this ctx is treated as present, and fails loudly later (at assembly)
// once the engine actually needs its resolved config.
func (t *Target) Enabled(ctx cfgresolve.Context) bool {
	resolved, err := t.ResolvedConfig(ctx)
	if err != nil {
		return true
	}
	return resolved.GetBool("enabled", true)
}
