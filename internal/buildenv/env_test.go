package buildenv

import (
	"testing"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/resolvers"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv() (*Environment, afero.Fs) {
	fs := afero.NewMemMapFs()
	loader := yamlconfig.NewLoader(fs)
	return New(fs, loader), fs
}

func TestRegisterDuplicateModuleFails(t *testing.T) {
	env, _ := newEnv()
	a := target.New("/a", "a", target.Project, nil, nil)
	b := target.New("/b", "a", target.Project, nil, nil)

	require.NoError(t, env.Register(a))
	err := env.Register(b)
	require.Error(t, err)
}

func TestRegisterInsertsDescendants(t *testing.T) {
	env, _ := newEnv()
	root := target.New("/app", "app", target.Project, nil, nil)
	child := target.New("/app/sub", "sub", target.Executable, nil, root)
	root.AddChild(child)

	require.NoError(t, env.Register(root))
	_, ok := env.Modules["app.sub"]
	assert.True(t, ok)
}

func TestResolveLocalDependency(t *testing.T) {
	env, _ := newEnv()
	lib := target.New("/lib", "lib", target.StaticLibrary, nil, nil)
	app := target.New("/app", "app", target.Executable, nil, nil)
	require.NoError(t, env.Register(lib))
	require.NoError(t, env.Register(app))

	dep, err := depstring.Parse("lib")
	require.NoError(t, err)

	resolved, err := env.ResolveDependency(app, dep)
	require.NoError(t, err)
	assert.Equal(t, lib, resolved)
}

func TestResolveLocalDependencyMissingFails(t *testing.T) {
	env, _ := newEnv()
	app := target.New("/app", "app", target.Executable, nil, nil)
	require.NoError(t, env.Register(app))

	dep, err := depstring.Parse("nonexistent")
	require.NoError(t, err)

	_, err = env.ResolveDependency(app, dep)
	require.Error(t, err)
}

func TestResolveUsesMappingWithFilterIntersection(t *testing.T) {
	env, _ := newEnv()
	lib := target.New("/lib", "lib", target.Project, nil, nil)
	sub := target.New("/lib/sub", "sub", target.StaticLibrary, nil, lib)
	lib.AddChild(sub)
	require.NoError(t, env.Register(lib))

	app := target.New("/app", "app", target.Executable, nil, nil)
	mapped, err := depstring.Parse("lib")
	require.NoError(t, err)
	app.UsesMapping = map[string]*depstring.TargetDependency{"thing": mapped}
	require.NoError(t, env.Register(app))

	dep, err := depstring.Parse("uses:thing [sub]")
	require.NoError(t, err)

	resolved, err := env.ResolveDependency(app, dep)
	require.NoError(t, err)
	assert.Equal(t, sub, resolved)
}

func TestResolveArchMismatchWithoutCoercerFails(t *testing.T) {
	env, _ := newEnv()
	lib := target.New("/lib", "lib", target.StaticLibrary, nil, nil)
	lib.BuildScope.Set("arch", "arm64")
	app := target.New("/app", "app", target.Executable, nil, nil)
	app.BuildScope.Set("arch", "x64")
	require.NoError(t, env.Register(lib))
	require.NoError(t, env.Register(app))

	dep, err := depstring.Parse("lib")
	require.NoError(t, err)

	_, err = env.ResolveDependency(app, dep)
	require.Error(t, err)
}

type fakeCoercedResolver struct {
	calls int
}

func (r *fakeCoercedResolver) Resolve(from *target.Target, dep *depstring.TargetDependency, cache *semverselect.Cache) (*target.Target, error) {
	return nil, nil
}

func (r *fakeCoercedResolver) ResolveCoerced(from *target.Target, existing *target.Target) (*target.Target, error) {
	r.calls++
	coerced := target.New(existing.Path, existing.Name, existing.Type, cfgresolve.NewMap(), existing.Parent)
	coerced.Module = "arch-coerced.x64." + existing.Module
	return coerced, nil
}

func TestResolveArchMismatchWithCoercerSucceeds(t *testing.T) {
	env, _ := newEnv()
	lib := target.New("/lib", "lib", target.StaticLibrary, nil, nil)
	lib.BuildScope.Set("arch", "arm64")
	app := target.New("/app", "app", target.Executable, nil, nil)
	app.BuildScope.Set("arch", "x64")
	require.NoError(t, env.Register(lib))
	require.NoError(t, env.Register(app))

	coercer := &fakeCoercedResolver{}
	env.Resolvers.Register("arch-coerced", coercer)

	dep, err := depstring.Parse("lib")
	require.NoError(t, err)

	resolved, err := env.ResolveDependency(app, dep)
	require.NoError(t, err)
	assert.Equal(t, 1, coercer.calls)
	assert.Equal(t, "arch-coerced.x64.lib", resolved.Module)
}

var _ resolvers.Resolver = (*fakeCoercedResolver)(nil)

// fakeFixedArchResolver stands in for a resolver (conan, git) that hands
// back a freshly synthesized Target already carrying its own arch, as
// opposed to one the caller pre-seeds by hand.
type fakeFixedArchResolver struct {
	arch string
}

func (r *fakeFixedArchResolver) Resolve(from *target.Target, dep *depstring.TargetDependency, cache *semverselect.Cache) (*target.Target, error) {
	t := target.New("/vendor/"+dep.Name, dep.Name, target.StaticLibrary, nil, nil)
	t.BuildScope.Set("arch", r.arch)
	return t, nil
}

func (r *fakeFixedArchResolver) HandlesFilters() bool { return false }

// TestSeedBuildScopeFromRunContextEnablesCoercionWithoutManualSeeding grounds
// the fix for arch coercion never firing in the real CLI pipeline: with
// Environment.Ctx set (as buildRig now does before any resolution), a
// dependent's build scope is seeded lazily on first use, so an arch
// mismatch against a dependency is caught even though nothing in this test
// manually calls BuildScope.Set on the dependent.
func TestSeedBuildScopeFromRunContextEnablesCoercionWithoutManualSeeding(t *testing.T) {
	env, _ := newEnv()
	env.Ctx = cfgresolve.Context{"arch": "x64"}
	env.Resolvers.Register("vendor", &fakeFixedArchResolver{arch: "arm64"})

	app := target.New("/app", "app", target.Executable, nil, nil)
	require.NoError(t, env.Register(app))

	dep, err := depstring.Parse("vendor:libfoo")
	require.NoError(t, err)

	_, err = env.ResolveDependency(app, dep)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindLoad))

	arch, ok := app.BuildScope.Get("arch")
	require.True(t, ok)
	assert.Equal(t, "x64", arch)
}

func TestCollectDependencySetOrdersDepsBeforeDependents(t *testing.T) {
	env, _ := newEnv()
	base := target.New("/base", "base", target.StaticLibrary, nil, nil)
	mid := target.New("/mid", "mid", target.StaticLibrary, nil, nil)
	app := target.New("/app", "app", target.Executable, nil, nil)
	require.NoError(t, env.Register(base))
	require.NoError(t, env.Register(mid))
	require.NoError(t, env.Register(app))

	baseDep, err := depstring.Parse("base")
	require.NoError(t, err)
	mid.Dependencies = []*depstring.TargetDependency{baseDep}

	midDep, err := depstring.Parse("mid")
	require.NoError(t, err)
	app.Dependencies = []*depstring.TargetDependency{midDep}

	order, err := env.CollectDependencySet(app)
	require.NoError(t, err)

	indexOf := func(name string) int {
		for i, t := range order {
			if t.Module == name {
				return i
			}
		}
		return -1
	}

	assert.Less(t, indexOf("base"), indexOf("mid"))
	assert.Less(t, indexOf("mid"), indexOf("app"))
}

func TestParseActionsFlatSequence(t *testing.T) {
	cfg := cfgresolve.NewMap()
	copyAction := cfgresolve.NewMap()
	copyData := cfgresolve.NewMap()
	copyData.Set("from", "a")
	copyData.Set("to", "b")
	copyAction.Set("copy", copyData)
	cfg.Set("actions", []cfgresolve.Value{copyAction})

	actions, err := ParseActions(cfg, "default")
	require.NoError(t, err)
	require.Len(t, actions["default"], 1)
	assert.Equal(t, "copy", actions["default"][0].Type)
}

func TestParseActionsPhaseMap(t *testing.T) {
	cfg := cfgresolve.NewMap()
	phases := cfgresolve.NewMap()

	installAction := cfgresolve.NewMap()
	installData := cfgresolve.NewMap()
	installAction.Set("install", installData)
	phases.Set("post-install", []cfgresolve.Value{installAction})

	cfg.Set("actions", phases)

	actions, err := ParseActions(cfg, "default")
	require.NoError(t, err)
	require.Len(t, actions["post-install"], 1)
	assert.Equal(t, "install", actions["post-install"][0].Type)
}

func TestActionCopyOnMemFs(t *testing.T) {
	env, fs := newEnv()
	require.NoError(t, afero.WriteFile(fs, "/app/src/file.txt", []byte("hi"), 0o644))

	tgt := target.New("/app", "app", target.Executable, nil, nil)
	tgt.BuildScope.Set("artifact-dir", "/app/out")

	data := cfgresolve.NewMap()
	data.Set("from", "src/file.txt")
	data.Set("to", "file.txt")

	require.NoError(t, env.actionCopy(tgt, data))

	contents, err := afero.ReadFile(fs, "/app/out/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(contents))
}
