package buildenv

import (
	"testing"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestInstallCopiesArtifactsAndRunsPostInstallActions(t *testing.T) {
	env, fs := newEnv()

	dep := target.New("/dep", "dep", target.StaticLibrary, cfgresolve.NewMap(), nil)
	app := target.New("/app", "app", target.Executable, cfgresolve.NewMap(), nil)

	app.Config.Set("install", []cfgresolve.Value{"/dst/app"})
	dep.Config.Set("install", []cfgresolve.Value{"/dst/dep"})

	postInstall := cfgresolve.NewMap()
	marker := cfgresolve.NewMap()
	markerData := cfgresolve.NewMap()
	markerData.Set("from", "/app/out/built.txt")
	markerData.Set("to", "marker.txt")
	marker.Set("copy", markerData)
	postInstall.Set("post-install", []cfgresolve.Value{marker})
	app.Config.Set("actions", postInstall)

	require.NoError(t, env.Register(dep))
	require.NoError(t, env.Register(app))

	appDep, err := depstring.Parse("dep")
	require.NoError(t, err)
	app.Dependencies = append(app.Dependencies, appDep)

	require.NoError(t, afero.WriteFile(fs, "/dep/artifact.bin", []byte("dep-artifact"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/out/built.txt", []byte("app-artifact"), 0o644))

	dep.BuildScope.Set("artifact-dir", "/dep")
	app.BuildScope.Set("artifact-dir", "/app/out")

	require.NoError(t, env.Install(app, cfgresolve.Context{}))

	contents, err := afero.ReadFile(fs, "/dst/dep/artifact.bin")
	require.NoError(t, err)
	require.Equal(t, "dep-artifact", string(contents))

	contents, err = afero.ReadFile(fs, "/dst/app/built.txt")
	require.NoError(t, err)
	require.Equal(t, "app-artifact", string(contents))

	contents, err = afero.ReadFile(fs, "/app/out/marker.txt")
	require.NoError(t, err)
	require.Equal(t, "app-artifact", string(contents))
}

func TestInstallFailsWithConfigExceptionOnUnsupportedBranch(t *testing.T) {
	env, _ := newEnv()

	app := target.New("/app", "app", target.Executable, cfgresolve.NewMap(), nil)
	app.Config.Set("arch.x64", "unsupported")
	require.NoError(t, env.Register(app))

	err := env.Install(app, cfgresolve.Context{"arch": "x64"})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindConfig))
}

func TestCopyPathSkipExistingDoesNotOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/file.txt", []byte("new"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/dst/file.txt", []byte("old"), 0o644))

	require.NoError(t, copyPathSkipExisting(fs, "/src", "/dst"))

	contents, err := afero.ReadFile(fs, "/dst/file.txt")
	require.NoError(t, err)
	require.Equal(t, "old", string(contents))
}

func TestCopyPathSkipExistingCopiesMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/file.txt", []byte("new"), 0o644))

	require.NoError(t, copyPathSkipExisting(fs, "/src", "/dst"))

	contents, err := afero.ReadFile(fs, "/dst/file.txt")
	require.NoError(t, err)
	require.Equal(t, "new", string(contents))
}
