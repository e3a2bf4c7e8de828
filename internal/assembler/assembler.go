// Package assembler implements the Build Description Assembler of
// spec.md §4.7: it walks a resolved target graph in dependency order,
// invokes language providers, and emits a flat, language-agnostic
// NinjaBuildDesc-shaped structure a build executor can consume.
package assembler

import (
	"fmt"
	"path/filepath"

	"github.com/osdeverr/rebs/internal/buildenv"
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/target"
)

// Rule is a named command template, either a "tool" (an external
// executable reference) or a build "rule" (a ninja-style rule with
// $in/$out substitution).
type Rule struct {
	Name    string
	Command string
}

// BuildTargetEntry is one emitted build statement: a rule invocation with
// concrete inputs, outputs, and per-statement variables.
type BuildTargetEntry struct {
	Rule      string
	Inputs    []string
	Outputs   []string
	Variables map[string]string
}

// BuildDesc is the NinjaBuildDesc-shaped output of spec.md §4.7: the
// initial and substituted variable blocks, internal (non-emitted) state,
// the declared tools/rules/targets, the target->artifact-path map, and a
// JSON-serializable meta record indexed by target path.
type BuildDesc struct {
	InitialVars     map[string]map[string]string
	SubstitutedVars map[string]map[string]string
	internalState   map[string]bool
	Tools           map[string]Rule
	Rules           map[string]Rule
	Targets         []BuildTargetEntry
	Artifacts       map[string]string
	Meta            map[string]map[string]interface{}

	// Objects accumulates each target's emitted object-file outputs,
	// keyed by module, so a link-language provider's CreateTargetArtifact
	// can find what to archive/link without re-walking Targets.
	Objects map[string][]string

	// Members indexes every target assembled so far by module, so a
	// provider can resolve one of t.Dependencies' Resolved module names
	// back to its Target (to check its Type, e.g. StaticLibrary) without
	// the provider package needing a buildenv.Environment reference.
	Members map[string]*target.Target

	// Ctx is the resolution context the assembler is running under,
	// exposed so providers can call target.ResolvedConfig(desc.Ctx)
	// themselves for language-specific keys the core pipeline doesn't
	// thread through the Provider contract.
	Ctx cfgresolve.Context
}

// NewBuildDesc creates an empty BuildDesc.
func NewBuildDesc() *BuildDesc {
	return &BuildDesc{
		InitialVars:     make(map[string]map[string]string),
		SubstitutedVars: make(map[string]map[string]string),
		internalState:   make(map[string]bool),
		Tools:           make(map[string]Rule),
		Rules:           make(map[string]Rule),
		Artifacts:       make(map[string]string),
		Meta:            make(map[string]map[string]interface{}),
		Objects:         make(map[string][]string),
		Members:         make(map[string]*target.Target),
	}
}

// AddObject records one of t's emitted object-file outputs.
func (d *BuildDesc) AddObject(module, path string) {
	d.Objects[module] = append(d.Objects[module], path)
}

// markOnce reports whether key has not been marked before, marking it as
// a side effect. Used to guard every idempotent transition of the
// per-target assembly state machine (Unvisited -> LinkEnvReady ->
// Configured -> RulesEmitted -> ArtifactCreated).
func (d *BuildDesc) markOnce(key string) bool {
	if d.internalState[key] {
		return false
	}
	d.internalState[key] = true
	return true
}

func (d *BuildDesc) setInitialVar(module, key, value string) {
	vars, ok := d.InitialVars[module]
	if !ok {
		vars = make(map[string]string)
		d.InitialVars[module] = vars
	}
	vars[key] = value
}

// AddRule registers a named build rule, replacing any prior rule by the
// same name.
func (d *BuildDesc) AddRule(name, command string) {
	d.Rules[name] = Rule{Name: name, Command: command}
}

// AddTool registers a named external tool reference.
func (d *BuildDesc) AddTool(name, command string) {
	d.Tools[name] = Rule{Name: name, Command: command}
}

// AddBuildTarget appends a build statement to the description.
func (d *BuildDesc) AddBuildTarget(entry BuildTargetEntry) {
	d.Targets = append(d.Targets, entry)
}

// SetArtifact records t's final artifact path, both in the artifacts map
// and in the per-target JSON meta record.
func (d *BuildDesc) SetArtifact(t *target.Target, path string) {
	d.Artifacts[t.Module] = path
	meta, ok := d.Meta[t.Path]
	if !ok {
		meta = make(map[string]interface{})
		d.Meta[t.Path] = meta
	}
	meta["artifact"] = path
	meta["module"] = t.Module
}

// Provider is the Language Provider contract of spec.md §6.1.
type Provider interface {
	// LangID is the stable identifier matched against a target's `langs` entries.
	LangID() string
	// InitInBuildDesc runs once per invocation, before any target is assembled.
	InitInBuildDesc(desc *BuildDesc) error
	// InitLinkTargetEnv populates t's build scope (artifact name, toolchain
	// variant) for the current assembly pass.
	InitLinkTargetEnv(desc *BuildDesc, t *target.Target) error
	// InitBuildTargetRules emits t's build rules; a false return skips
	// per-source-file processing entirely (header-only / no-op languages).
	InitBuildTargetRules(desc *BuildDesc, t *target.Target) (bool, error)
	// ProcessSourceFile emits a compile entry for one of t's source files.
	ProcessSourceFile(desc *BuildDesc, t *target.Target, src target.SourceFile) error
	// CreateTargetArtifact emits the final archive/link/alias entry and
	// registers the artifact path via desc.SetArtifact.
	CreateTargetArtifact(desc *BuildDesc, t *target.Target) error
}

// Registry dispatches providers by LangID, grounded on the same
// register/lookup factory-table shape as internal/resolvers.Registry.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider under its own LangID.
func (r *Registry) Register(p Provider) {
	r.providers[p.LangID()] = p
}

// Lookup returns the provider for langID, if registered.
func (r *Registry) Lookup(langID string) (Provider, bool) {
	p, ok := r.providers[langID]
	return p, ok
}

// Assembler drives the per-target assembly pipeline of spec.md §4.7 over
// a resolved target graph.
type Assembler struct {
	Env       *buildenv.Environment
	Providers *Registry
	Desc      *BuildDesc
	Ctx       cfgresolve.Context
}

// New creates an Assembler bound to env and providers, resolving
// configuration against ctx.
func New(env *buildenv.Environment, providers *Registry, ctx cfgresolve.Context) *Assembler {
	desc := NewBuildDesc()
	desc.Ctx = ctx
	return &Assembler{Env: env, Providers: providers, Desc: desc, Ctx: ctx}
}

// Assemble runs the full pipeline for root and its dependency set, in
// dependency order (deps before dependents), and returns the populated
// BuildDesc.
func (a *Assembler) Assemble(root *target.Target) (*BuildDesc, error) {
	members, err := a.Env.CollectDependencySet(root)
	if err != nil {
		return nil, err
	}
	members = append(members, root)

	for _, p := range a.Providers.providers {
		if err := p.InitInBuildDesc(a.Desc); err != nil {
			return nil, err
		}
	}

	for _, t := range members {
		a.Desc.Members[t.Module] = t
		if !t.Enabled(a.Ctx) {
			continue
		}
		if err := a.assembleTarget(t); err != nil {
			return nil, err
		}
	}

	return a.Desc, nil
}

func (a *Assembler) assembleTarget(t *target.Target) error {
	resolved, err := t.ResolvedConfig(a.Ctx)
	if err != nil {
		return err
	}

	linkProvider, err := a.linkEnvInit(t, resolved)
	if err != nil {
		return err
	}

	if err := a.preConfigureActions(t, resolved); err != nil {
		return err
	}

	if err := a.buildRules(t, resolved); err != nil {
		return err
	}

	if linkProvider != nil {
		key := "artifact_created_" + t.Module
		if a.Desc.markOnce(key) {
			if err := linkProvider.CreateTargetArtifact(a.Desc, t); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *Assembler) linkEnvInit(t *target.Target, resolved *cfgresolve.Map) (Provider, error) {
	key := "link_initialized_" + t.Module
	langs := langList(resolved)

	var linkProvider Provider
	if len(langs) > 0 {
		linkProvider, _ = a.Providers.Lookup(langs[0])
	}

	if !a.Desc.markOnce(key) {
		return linkProvider, nil
	}

	t.BuildScope.Set("arch", firstNonEmpty(a.Ctx["arch"], "host"))
	t.BuildScope.Set("platform", firstNonEmpty(a.Ctx["platform"], "host"))
	t.BuildScope.Set("configuration", firstNonEmpty(a.Ctx["config"], "debug"))

	srcDir := t.Path
	outDir := filepath.Join(t.Path, "out", tripletDir(t))
	if raw, ok := resolved.GetString("out-dir"); ok {
		if v, err := t.BuildScope.Resolve(raw); err == nil {
			outDir = v
		}
	}
	artifactDir := filepath.Join(outDir, "build", t.Module)
	if raw, ok := resolved.GetString("out-artifact-dir"); ok {
		if v, err := t.BuildScope.Resolve(raw); err == nil {
			artifactDir = filepath.Join(outDir, v)
		}
	}
	objectDir := filepath.Join(outDir, "obj", t.Module)
	if raw, ok := resolved.GetString("out-object-dir"); ok {
		if v, err := t.BuildScope.Resolve(raw); err == nil {
			objectDir = filepath.Join(outDir, v)
		}
	}

	t.BuildScope.Set("src-dir", srcDir)
	t.BuildScope.Set("out-dir", outDir)
	t.BuildScope.Set("artifact-dir", artifactDir)
	t.BuildScope.Set("object-dir", objectDir)
	t.BuildScope.Set("build-artifact", defaultArtifactName(t, resolved))

	a.Desc.setInitialVar(t.Module, "artifact-dir", artifactDir)
	a.Desc.setInitialVar(t.Module, "object-dir", objectDir)

	if linkProvider != nil {
		if err := linkProvider.InitLinkTargetEnv(a.Desc, t); err != nil {
			return nil, err
		}
	}

	return linkProvider, nil
}

func tripletDir(t *target.Target) string {
	arch, _ := t.BuildScope.Get("arch")
	platform, _ := t.BuildScope.Get("platform")
	config, _ := t.BuildScope.Get("configuration")
	return fmt.Sprintf("%s-%s-%s", firstNonEmpty(arch, "host"), firstNonEmpty(platform, "host"), firstNonEmpty(config, "debug"))
}

func defaultArtifactName(t *target.Target, resolved *cfgresolve.Map) string {
	if name, ok := resolved.GetString("artifact-name"); ok {
		return name
	}
	return t.Name
}

func (a *Assembler) preConfigureActions(t *target.Target, resolved *cfgresolve.Map) error {
	if !a.Desc.markOnce("configured_" + t.Module) {
		return nil
	}
	actions, err := buildenv.ParseActions(resolved, "default")
	if err != nil {
		return err
	}
	return a.Env.RunActions(t, actions["pre-configure"], "pre-configure")
}

func (a *Assembler) buildRules(t *target.Target, resolved *cfgresolve.Map) error {
	for _, langID := range langList(resolved) {
		provider, ok := a.Providers.Lookup(langID)
		if !ok {
			continue
		}

		key := "rules_emitted_" + langID + "_" + t.Module
		if !a.Desc.markOnce(key) {
			continue
		}

		hasObjects, err := provider.InitBuildTargetRules(a.Desc, t)
		if err != nil {
			return err
		}
		if !hasObjects {
			continue
		}

		a.Desc.internalState["re_"+langID+"_target_has_objects_"+t.Module] = true
		for _, src := range t.Sources {
			if err := provider.ProcessSourceFile(a.Desc, t, src); err != nil {
				return err
			}
		}
	}
	return nil
}

func langList(resolved *cfgresolve.Map) []string {
	seq, ok := resolved.GetSequence("langs")
	if !ok {
		return nil
	}
	var out []string
	for _, v := range seq {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
