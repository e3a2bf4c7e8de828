package assembler

import (
	"testing"

	"github.com/osdeverr/rebs/internal/buildenv"
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id               string
	initCalls        int
	linkCalls        int
	rulesCalls       int
	sourceCalls      []string
	artifactCalls    int
	hasObjects       bool
}

func (f *fakeProvider) LangID() string { return f.id }

func (f *fakeProvider) InitInBuildDesc(desc *BuildDesc) error {
	f.initCalls++
	return nil
}

func (f *fakeProvider) InitLinkTargetEnv(desc *BuildDesc, t *target.Target) error {
	f.linkCalls++
	t.BuildScope.Set("build-artifact", t.Name+".bin")
	return nil
}

func (f *fakeProvider) InitBuildTargetRules(desc *BuildDesc, t *target.Target) (bool, error) {
	f.rulesCalls++
	desc.AddRule("fake-compile", "fakec $in -o $out")
	return f.hasObjects, nil
}

func (f *fakeProvider) ProcessSourceFile(desc *BuildDesc, t *target.Target, src target.SourceFile) error {
	f.sourceCalls = append(f.sourceCalls, src.Path)
	return nil
}

func (f *fakeProvider) CreateTargetArtifact(desc *BuildDesc, t *target.Target) error {
	f.artifactCalls++
	artifact, _ := t.BuildScope.Get("build-artifact")
	desc.SetArtifact(t, artifact)
	return nil
}

func newTestEnv() (*buildenv.Environment, afero.Fs) {
	fs := afero.NewMemMapFs()
	loader := yamlconfig.NewLoader(fs)
	return buildenv.New(fs, loader), fs
}

func TestAssembleRunsFullPipelineOnce(t *testing.T) {
	env, _ := newTestEnv()

	cfg := cfgresolve.NewMap()
	cfg.Set("langs", []cfgresolve.Value{"fake"})
	app := target.New("/app", "app", target.Executable, cfg, nil)
	app.Sources = []target.SourceFile{{Path: "/app/main.fk", Extension: "fk"}}

	require.NoError(t, env.Register(app))

	provider := &fakeProvider{id: "fake", hasObjects: true}
	registry := NewRegistry()
	registry.Register(provider)

	asm := New(env, registry, cfgresolve.Context{})
	desc, err := asm.Assemble(app)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.initCalls)
	assert.Equal(t, 1, provider.linkCalls)
	assert.Equal(t, 1, provider.rulesCalls)
	assert.Equal(t, []string{"/app/main.fk"}, provider.sourceCalls)
	assert.Equal(t, 1, provider.artifactCalls)
	assert.Equal(t, "app.bin", desc.Artifacts["app"])

	// Re-assembling the same target must not re-run the per-target
	// idempotent phases.
	require.NoError(t, asm.assembleTarget(app))
	assert.Equal(t, 1, provider.linkCalls)
	assert.Equal(t, 1, provider.artifactCalls)
}

func TestAssembleSkipsDisabledTarget(t *testing.T) {
	env, _ := newTestEnv()

	cfg := cfgresolve.NewMap()
	cfg.Set("enabled", false)
	cfg.Set("langs", []cfgresolve.Value{"fake"})
	app := target.New("/app", "app", target.Executable, cfg, nil)
	require.NoError(t, env.Register(app))

	provider := &fakeProvider{id: "fake", hasObjects: true}
	registry := NewRegistry()
	registry.Register(provider)

	asm := New(env, registry, cfgresolve.Context{})
	_, err := asm.Assemble(app)
	require.NoError(t, err)
	assert.Equal(t, 0, provider.linkCalls)
}

func TestAssembleSkipsSourceProcessingWhenRulesReturnFalse(t *testing.T) {
	env, _ := newTestEnv()

	cfg := cfgresolve.NewMap()
	cfg.Set("langs", []cfgresolve.Value{"fake"})
	app := target.New("/app", "app", target.Executable, cfg, nil)
	app.Sources = []target.SourceFile{{Path: "/app/main.fk", Extension: "fk"}}
	require.NoError(t, env.Register(app))

	provider := &fakeProvider{id: "fake", hasObjects: false}
	registry := NewRegistry()
	registry.Register(provider)

	asm := New(env, registry, cfgresolve.Context{})
	_, err := asm.Assemble(app)
	require.NoError(t, err)
	assert.Empty(t, provider.sourceCalls)
}
