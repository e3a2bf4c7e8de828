// Package providers implements the Language Provider contract of
// spec.md §6.1 and ships a reference "cxx" provider covering the
// cxx-* configuration keys of §6.5.
package providers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/osdeverr/rebs/internal/assembler"
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/target"
)

// CxxProvider compiles C/C++ sources into objects and archives/links the
// result, driven entirely by the cxx-* configuration keys. Grounded on
// the same "compiler as a pluggable backend" shape as the compiler
// package's Compiler interface, generalized from a single-shot compile
// call to emitting build-description entries instead of running the
// compiler itself.
type CxxProvider struct {
	extensions map[string]bool
}

// NewCxx creates the reference C/C++ provider.
func NewCxx() *CxxProvider {
	return &CxxProvider{extensions: map[string]bool{"c": true, "cc": true, "cpp": true, "cxx": true}}
}

func (p *CxxProvider) LangID() string { return "cxx" }

func (p *CxxProvider) InitInBuildDesc(desc *assembler.BuildDesc) error {
	desc.AddTool("cxx-compiler", "c++")
	desc.AddTool("cxx-archiver", "ar")
	desc.AddTool("cxx-linker", "c++")
	desc.AddRule("cxx-compile", "$cxx-compiler -c $in -o $out $cxx-flags")
	desc.AddRule("cxx-archive", "$cxx-archiver rcs $out $in")
	desc.AddRule("cxx-link", "$cxx-linker $in -o $out $cxx-link-flags")
	return nil
}

func (p *CxxProvider) InitLinkTargetEnv(desc *assembler.BuildDesc, t *target.Target) error {
	resolved, err := t.ResolvedConfig(desc.Ctx)
	if err != nil {
		return err
	}

	if env, ok := resolved.GetString("cxx-env"); ok {
		desc.AddTool("cxx-compiler", env)
		desc.AddTool("cxx-linker", env)
	}

	ext := "a"
	switch t.Type {
	case target.SharedLibrary:
		ext = "so"
	case target.Executable:
		ext = ""
	}
	if raw, ok := resolved.GetString("out-ext"); ok {
		ext = raw
	}

	name := t.Name
	if n, ok := resolved.GetString("artifact-name"); ok {
		name = n
	}
	artifact := name
	if t.Type == target.StaticLibrary {
		artifact = "lib" + name
	}
	if ext != "" {
		artifact = artifact + "." + ext
	}
	t.BuildScope.Set("build-artifact", artifact)

	return nil
}

func (p *CxxProvider) InitBuildTargetRules(desc *assembler.BuildDesc, t *target.Target) (bool, error) {
	for _, src := range t.Sources {
		if p.extensions[src.Extension] {
			return true, nil
		}
	}
	return false, nil
}

func (p *CxxProvider) ProcessSourceFile(desc *assembler.BuildDesc, t *target.Target, src target.SourceFile) error {
	if !p.extensions[src.Extension] {
		return nil
	}

	resolved, err := t.ResolvedConfig(desc.Ctx)
	if err != nil {
		return err
	}
	flags := cxxFlags(resolved)

	objectDir, _ := t.BuildScope.Get("object-dir")
	base := strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
	objPath := filepath.Join(objectDir, base+".o")

	desc.AddBuildTarget(assembler.BuildTargetEntry{
		Rule:      "cxx-compile",
		Inputs:    []string{src.Path},
		Outputs:   []string{objPath},
		Variables: map[string]string{"cxx-flags": flags},
	})
	desc.AddObject(t.Module, objPath)
	return nil
}

func (p *CxxProvider) CreateTargetArtifact(desc *assembler.BuildDesc, t *target.Target) error {
	artifactDir, _ := t.BuildScope.Get("artifact-dir")
	artifactName, _ := t.BuildScope.Get("build-artifact")
	outPath := filepath.Join(artifactDir, artifactName)

	objects := desc.Objects[t.Module]

	rule := "cxx-link"
	if t.Type == target.StaticLibrary {
		rule = "cxx-archive"
	}

	inputs := append([]string{}, objects...)
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		seen[in] = true
	}
	addInput := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		inputs = append(inputs, path)
	}

	for _, dependent := range dependencyLibraryArtifacts(desc, t) {
		addInput(dependent)
	}
	linkWith, err := linkWithArtifacts(desc, t)
	if err != nil {
		return err
	}
	for _, dependent := range linkWith {
		addInput(dependent)
	}

	desc.AddBuildTarget(assembler.BuildTargetEntry{
		Rule:    rule,
		Inputs:  inputs,
		Outputs: []string{outPath},
	})
	desc.SetArtifact(t, outPath)
	return nil
}

// dependencyLibraryArtifacts derives link inputs from t's own resolved
// dependency set, not an explicit override: every dependency that resolved
// to a StaticLibrary target with emitted objects contributes its archive.
// A plain `deps: [.libfoo]` entry (no `link-with`) must still link, per
// spec.md's static-lib-plus-executable scenario.
func dependencyLibraryArtifacts(desc *assembler.BuildDesc, t *target.Target) []string {
	var out []string
	for _, dep := range t.Dependencies {
		for _, module := range dep.Resolved {
			depTarget, ok := desc.Members[module]
			if !ok || depTarget.Type != target.StaticLibrary {
				continue
			}
			if len(desc.Objects[module]) == 0 {
				continue
			}
			if path, ok := desc.Artifacts[module]; ok {
				out = append(out, path)
			}
		}
	}
	return out
}

func linkWithArtifacts(desc *assembler.BuildDesc, t *target.Target) ([]string, error) {
	resolved, err := t.ResolvedConfig(desc.Ctx)
	if err != nil {
		return nil, err
	}
	seq, ok := resolved.GetSequence("link-with")
	if !ok {
		return nil, nil
	}
	var out []string
	for _, v := range seq {
		module, ok := v.(string)
		if !ok {
			continue
		}
		if path, ok := desc.Artifacts[module]; ok {
			out = append(out, path)
		}
	}
	return out, nil
}

// cxxFlags assembles a compiler invocation's flag string from the
// cxx-standard, cxx-include-dirs, cxx-compile-definitions[-public], and
// cxx-build-flags keys of resolved (spec.md §6.5).
func cxxFlags(resolved *cfgresolve.Map) string {
	if resolved == nil {
		return ""
	}

	var parts []string

	if std, ok := resolved.GetString("cxx-standard"); ok {
		parts = append(parts, "-std="+std)
	}

	if dirs, ok := resolved.GetSequence("cxx-include-dirs"); ok {
		for _, d := range dirs {
			if s, ok := d.(string); ok {
				parts = append(parts, "-I"+s)
			}
		}
	}

	for _, key := range []string{"cxx-compile-definitions", "cxx-compile-definitions-public"} {
		if defs, ok := resolved.GetMap(key); ok {
			for _, name := range defs.Keys() {
				val, _ := defs.Get(name)
				parts = append(parts, fmt.Sprintf("-D%s=%v", name, val))
			}
		}
	}

	if flags, ok := resolved.GetSequence("cxx-build-flags"); ok {
		for _, f := range flags {
			if s, ok := f.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	return strings.Join(parts, " ")
}
