package target

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
)

// ConfigFileName is the primary per-directory target config.
const ConfigFileName = "re.yml"

// ignoreMarker, present in a subdirectory, excludes that subtree from
// source loading entirely (spec.md §4.3 "Loading source tree").
const ignoreMarker = ".re-ignore-this"

// SourceMiddleware mirrors buildenv.LoadMiddleware's two-method contract
// (spec.md §6.2), declared locally rather than imported: buildenv already
// imports target, so a shared named type here would create an import
// cycle. Both interfaces describe the same external-tooling hook by
// construction — a middleware implementation satisfies both without
// change.
type SourceMiddleware interface {
	Supports(path string) bool
	Load(fs afero.Fs, path string, ancestor *Target) (*Target, error)
}

// LoadFromDirectory reads path's re.yml (and any sibling *.re.yml files,
// merged in sorted-filename order) into a raw Config, derives name and
// type, and constructs a Target parented by ancestor. It does not walk
// the source tree; call LoadSourceTree separately (spec.md §4.3
// "Construction from a directory").
func LoadFromDirectory(fs afero.Fs, loader *yamlconfig.Loader, path string, ancestor *Target) (*Target, error) {
	cfg, err := loadConfigDir(fs, loader, path)
	if err != nil {
		return nil, err
	}

	name, _ := cfg.GetString("name")
	if name == "" {
		name = filepath.Base(path)
	}

	typeStr, ok := cfg.GetString("type")
	if !ok || typeStr == "" {
		return nil, errs.Load("", "target at %s has no \"type\" config key", path)
	}

	t := New(path, name, Type(typeStr), cfg, ancestor)

	if err := t.loadDependencies(); err != nil {
		return nil, err
	}
	t.loadUsesMapping()

	return t, nil
}

// NewFromData constructs a Target directly from an in-memory config node,
// with no file I/O (spec.md §4.3 "Construction from explicit data"), used
// by resolvers that synthesize targets (conan packages, arch coercion,
// extra-config variants).
func NewFromData(path, name string, typ Type, cfg *cfgresolve.Map, ancestor *Target) (*Target, error) {
	t := New(path, name, typ, cfg, ancestor)
	if err := t.loadDependencies(); err != nil {
		return nil, err
	}
	t.loadUsesMapping()
	return t, nil
}

// loadConfigDir reads re.yml and merges any sibling *.re.yml files in
// sorted order on top of it.
func loadConfigDir(fs afero.Fs, loader *yamlconfig.Loader, path string) (*cfgresolve.Map, error) {
	primary := filepath.Join(path, ConfigFileName)
	cfg, err := loader.LoadFile(primary)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, errs.LoadWrap("", err, "failed to list directory %s", path)
	}

	var siblings []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == ConfigFileName {
			continue
		}
		if strings.HasSuffix(e.Name(), ".re.yml") {
			siblings = append(siblings, e.Name())
		}
	}
	sort.Strings(siblings)

	for _, name := range siblings {
		sibling, err := loader.LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		cfg = cfgresolve.Merge(cfg, sibling)
	}

	return cfg, nil
}

// loadDependencies parses t's deps (and cond-deps, spec.md §9 open
// question #4) into Target.Dependencies, deduplicated by (raw,
// extra_config_hash). Both lists are read from t's raw config only; a
// resolved config is not consulted, even if one is already cached.
func (t *Target) loadDependencies() error {
	seen := make(map[string]bool)
	var deps []*depstring.TargetDependency

	for _, key := range []string{"deps", "cond-deps"} {
		seq, ok := t.Config.GetSequence(key)
		if !ok {
			continue
		}
		parsed, err := parseDepList(seq, t.Module)
		if err != nil {
			return err
		}
		for _, d := range parsed {
			dk := d.DedupKey()
			if seen[dk] {
				continue
			}
			seen[dk] = true
			if strings.HasPrefix(d.Name, ".") {
				d.Name = ResolveParentRef(d.Name, t)
			}
			deps = append(deps, d)
		}
	}

	t.Dependencies = deps
	return nil
}

// parseDepList parses a deps/cond-deps sequence: each entry is either a
// bare depstring or a single-key {depstring: extra_config} map (spec.md
// §4.4 "Map form").
func parseDepList(seq []cfgresolve.Value, ownerModule string) ([]*depstring.TargetDependency, error) {
	var out []*depstring.TargetDependency
	for _, entry := range seq {
		switch v := entry.(type) {
		case string:
			dep, err := depstring.Parse(v)
			if err != nil {
				return nil, err
			}
			out = append(out, dep)

		case *cfgresolve.Map:
			if v.Len() != 1 {
				return nil, errs.Load(ownerModule, "dependency map entry must have exactly one key")
			}
			key := v.Keys()[0]
			extraVal, _ := v.Get(key)
			extraMap, _ := extraVal.(*cfgresolve.Map)
			dep, err := depstring.ParseMapForm(key, extraMap, ownerModule)
			if err != nil {
				return nil, err
			}
			out = append(out, dep)

		default:
			return nil, errs.Load(ownerModule, "dependency list entries must be a string or single-key map")
		}
	}
	return out, nil
}

// loadUsesMapping builds t.UsesMapping from config.uses: a map of
// local-name -> depstring (spec.md §4.3 "Loading uses-mapping"). Variable
// substitution against t's build scope is applied before parsing, so a
// uses entry may reference e.g. ${build:arch}.
func (t *Target) loadUsesMapping() {
	usesMap, ok := t.Config.GetMap("uses")
	if !ok {
		return
	}

	for _, name := range usesMap.Keys() {
		raw, _ := usesMap.Get(name)
		depstr, ok := raw.(string)
		if !ok {
			continue
		}
		if substituted, err := t.BuildScope.Resolve(depstr); err == nil {
			depstr = substituted
		}
		dep, err := depstring.Parse(depstr)
		if err != nil {
			continue
		}
		if strings.HasPrefix(dep.Name, ".") {
			dep.Name = ResolveParentRef(dep.Name, t)
		}
		t.UsesMapping[name] = dep
	}
}

// LoadSourceTree walks t.Path depth-first (spec.md §4.3 "Loading source
// tree"): dotfiles are skipped; a subdirectory carrying .re-ignore-this
// is skipped entirely; a subdirectory that is itself a loadable target
// (middleware.Supports, or a bare re.yml) is loaded recursively as a
// child via AddChild instead of contributing source files; every other
// subdirectory is recursed into for sources only. Per-child load errors
// are accumulated with go-multierror rather than aborting the whole
// walk at the first failure.
func (t *Target) LoadSourceTree(fs afero.Fs, loader *yamlconfig.Loader, middleware SourceMiddleware) error {
	return t.walkSourceTree(fs, loader, middleware, t.Path)
}

func (t *Target) walkSourceTree(fs afero.Fs, loader *yamlconfig.Loader, middleware SourceMiddleware, dir string) error {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return errs.LoadWrap(t.Module, err, "failed to list directory %s", dir)
	}

	names := make([]string, len(entries))
	isDir := make(map[string]bool, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
		isDir[e.Name()] = e.IsDir()
	}
	sort.Strings(names)

	var errAcc *multierror.Error

	for _, name := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)

		if !isDir[name] {
			ext := strings.TrimPrefix(filepath.Ext(name), ".")
			t.Sources = append(t.Sources, SourceFile{Path: full, Extension: ext})
			continue
		}

		ignored, err := afero.Exists(fs, filepath.Join(full, ignoreMarker))
		if err != nil {
			errAcc = multierror.Append(errAcc, err)
			continue
		}
		if ignored {
			continue
		}

		if loadable, err := isLoadableTarget(fs, middleware, full); err != nil {
			errAcc = multierror.Append(errAcc, err)
			continue
		} else if loadable {
			child, err := loadChildTarget(fs, loader, middleware, full, t)
			if err != nil {
				errAcc = multierror.Append(errAcc, err)
				continue
			}
			if err := child.LoadSourceTree(fs, loader, middleware); err != nil {
				errAcc = multierror.Append(errAcc, err)
				continue
			}
			t.AddChild(child)
			continue
		}

		if err := t.walkSourceTree(fs, loader, middleware, full); err != nil {
			errAcc = multierror.Append(errAcc, err)
		}
	}

	return errAcc.ErrorOrNil()
}

func isLoadableTarget(fs afero.Fs, middleware SourceMiddleware, path string) (bool, error) {
	if middleware != nil && middleware.Supports(path) {
		return true, nil
	}
	return afero.Exists(fs, filepath.Join(path, ConfigFileName))
}

func loadChildTarget(fs afero.Fs, loader *yamlconfig.Loader, middleware SourceMiddleware, path string, ancestor *Target) (*Target, error) {
	if middleware != nil && middleware.Supports(path) {
		return middleware.Load(fs, path, ancestor)
	}
	return LoadFromDirectory(fs, loader, path, ancestor)
}
