// Package fsresolver implements the "fs" namespace resolver: a dependency
// fetched from a path on the local filesystem, memoized by dependency name
// plus the dependent's build triplet plus any cutout filter (spec.md §4.5
// "Caching keys").
package fsresolver

import (
	"path/filepath"

	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
)

// Resolver resolves "fs:" namespaced dependencies: dep.Name is a filesystem
// path (relative to Root), optionally refined by a cutout filter.
type Resolver struct {
	Fs     afero.Fs
	Loader *yamlconfig.Loader
	Root   string

	cache map[string]*target.Target
}

// New builds a fs resolver rooted at root (typically the build environment's
// working directory).
func New(fs afero.Fs, loader *yamlconfig.Loader, root string) *Resolver {
	return &Resolver{Fs: fs, Loader: loader, Root: root, cache: make(map[string]*target.Target)}
}

func (r *Resolver) Resolve(from *target.Target, dep *depstring.TargetDependency, cache *semverselect.Cache) (*target.Target, error) {
	cutout, _ := dep.CutoutFilter()

	path := dep.Name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.Root, path)
	}
	if cutout != "" {
		path = filepath.Join(path, cutout)
	}

	key := buildCacheKey(from, dep, path)
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}

	exists, err := afero.Exists(r.Fs, filepath.Join(path, "re.yml"))
	if err != nil || !exists {
		return nil, errs.Dependency(from.Module, "fs dependency %q not found at %s", dep.Raw, path)
	}

	resolved, err := target.LoadFromDirectory(r.Fs, r.Loader, path, nil)
	if err != nil {
		return nil, err
	}

	r.cache[key] = resolved
	return resolved, nil
}

func (r *Resolver) HandlesFilters() bool { return false }

func buildCacheKey(from *target.Target, dep *depstring.TargetDependency, path string) string {
	triplet := buildTriplet(from)
	cutout, _ := dep.CutoutFilter()
	return dep.Name + "|" + triplet + "|" + cutout + "|" + path
}

func buildTriplet(from *target.Target) string {
	arch, _ := from.BuildScope.Get("arch")
	platform, _ := from.BuildScope.Get("platform")
	config, _ := from.BuildScope.Get("configuration")
	return arch + "-" + platform + "-" + config
}
