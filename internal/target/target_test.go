package target

import (
	"testing"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsNilConfigAndDerivesModule(t *testing.T) {
	root := New("/app", "app", Project, nil, nil)
	assert.Equal(t, "app", root.Module)
	assert.NotNil(t, root.Config)
	assert.Equal(t, 0, root.Config.Len())

	child := New("/app/sub", "sub", Executable, nil, root)
	assert.Equal(t, "app.sub", child.Module)
	assert.Same(t, root, child.Parent)
}

func TestNewSeedsTargetScope(t *testing.T) {
	tgt := New("/app", "app", Project, nil, nil)
	name, ok := tgt.TargetScope.Get("name")
	require.True(t, ok)
	assert.Equal(t, "app", name)

	module, ok := tgt.TargetScope.Get("module")
	require.True(t, ok)
	assert.Equal(t, "app", module)
}

func TestBuildScopeFallsBackToParent(t *testing.T) {
	root := New("/app", "app", Project, nil, nil)
	root.BuildScope.Set("arch", "x64")

	child := New("/app/sub", "sub", Executable, nil, root)
	arch, ok := child.BuildScope.Get("arch")
	require.True(t, ok)
	assert.Equal(t, "x64", arch)

	child.BuildScope.Set("arch", "arm64")
	childArch, _ := child.BuildScope.Get("arch")
	rootArch, _ := root.BuildScope.Get("arch")
	assert.Equal(t, "arm64", childArch)
	assert.Equal(t, "x64", rootArch)
}

func TestChainIsRootFirst(t *testing.T) {
	root := New("/app", "app", Project, nil, nil)
	mid := New("/app/mid", "mid", Project, nil, root)
	leaf := New("/app/mid/leaf", "leaf", Executable, nil, mid)

	chain := leaf.Chain()
	require.Len(t, chain, 3)
	assert.Same(t, root, chain[0])
	assert.Same(t, mid, chain[1])
	assert.Same(t, leaf, chain[2])
}

func TestChildSetExcludesSelf(t *testing.T) {
	root := New("/app", "app", Project, nil, nil)
	a := New("/app/a", "a", Executable, nil, root)
	b := New("/app/a/b", "b", Executable, nil, a)
	root.AddChild(a)
	a.AddChild(b)

	set := root.ChildSet()
	require.Len(t, set, 2)
	assert.NotContains(t, set, root)
	assert.Contains(t, set, a)
	assert.Contains(t, set, b)
}

func TestAddDependentDedupsByModule(t *testing.T) {
	lib := New("/lib", "lib", StaticLibrary, nil, nil)
	app := New("/app", "app", Executable, nil, nil)

	lib.AddDependent(app)
	lib.AddDependent(app)

	assert.Len(t, lib.Dependents(), 1)
}

func TestResolvedConfigCachesByContext(t *testing.T) {
	cfg := cfgresolve.NewMap()
	cfg.Set("enabled", true)
	tgt := New("/app", "app", Project, cfg, nil)

	ctx := cfgresolve.Context{"arch": "x64"}
	first, err := tgt.ResolvedConfig(ctx)
	require.NoError(t, err)
	second, err := tgt.ResolvedConfig(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := tgt.ResolvedConfig(cfgresolve.Context{"arch": "arm64"})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestResolvedConfigPropagatesConfigExceptionOnUnsupportedBranch(t *testing.T) {
	cfg := cfgresolve.NewMap()
	cfg.Set("arch.x64", "unsupported")
	tgt := New("/app", "app", Project, cfg, nil)

	resolved, err := tgt.ResolvedConfig(cfgresolve.Context{"arch": "x64"})
	assert.Nil(t, resolved)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfig))
}

func TestEnabledDefaultsTrue(t *testing.T) {
	tgt := New("/app", "app", Project, nil, nil)
	assert.True(t, tgt.Enabled(cfgresolve.Context{}))
}

func TestEnabledFalseWhenConfigured(t *testing.T) {
	cfg := cfgresolve.NewMap()
	cfg.Set("enabled", false)
	tgt := New("/app", "app", Project, cfg, nil)
	assert.False(t, tgt.Enabled(cfgresolve.Context{}))
}

func TestEnabledDefaultsTrueOnResolutionFailure(t *testing.T) {
	cfg := cfgresolve.NewMap()
	cfg.Set("arch.x64", "unsupported")
	cfg.Set("enabled", false)
	tgt := New("/app", "app", Project, cfg, nil)

	assert.True(t, tgt.Enabled(cfgresolve.Context{"arch": "x64"}))
}

func TestRootWalksParentChain(t *testing.T) {
	root := New("/app", "app", Project, nil, nil)
	mid := New("/app/mid", "mid", Project, nil, root)
	leaf := New("/app/mid/leaf", "leaf", Executable, nil, mid)

	assert.Same(t, root, leaf.Root())
	assert.Same(t, root, root.Root())
}
