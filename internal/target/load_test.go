package target

import (
	"testing"

	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDirectoryDerivesNameAndType(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: executable\nname: app\n"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	assert.Equal(t, "app", tgt.Name)
	assert.Equal(t, Executable, tgt.Type)
	assert.Equal(t, "app", tgt.Module)
}

func TestLoadFromDirectoryDefaultsNameToDirBase(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/projects/widget/re.yml", []byte("type: static-library\n"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/projects/widget", nil)
	require.NoError(t, err)
	assert.Equal(t, "widget", tgt.Name)
}

func TestLoadFromDirectoryMissingTypeFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("name: app\n"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	_, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindLoad))
}

func TestLoadFromDirectoryMergesSiblingConfigsInSortedOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: executable\nname: app\nvalue: base\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/b.re.yml", []byte("value: from-b\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/a.re.yml", []byte("value: from-a\n"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)

	value, ok := tgt.Config.GetString("value")
	require.True(t, ok)
	assert.Equal(t, "from-b", value)
}

func TestLoadFromDirectoryParsesDependenciesWithDedup(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := "type: executable\nname: app\ndeps:\n  - fs:lib@1.0.0\n  - fs:lib@1.0.0\ncond-deps:\n  - fs:other\n"
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte(body), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.Len(t, tgt.Dependencies, 2)
	assert.Equal(t, "lib", tgt.Dependencies[0].Name)
	assert.Equal(t, "other", tgt.Dependencies[1].Name)
}

func TestLoadFromDirectoryParsesMapFormDependencyExtraConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := "type: executable\nname: app\ndeps:\n  - fs:lib:\n      arch: arm64\n"
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte(body), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.Len(t, tgt.Dependencies, 1)
	require.NotNil(t, tgt.Dependencies[0].ExtraConfig)
	arch, ok := tgt.Dependencies[0].ExtraConfig.GetString("arch")
	require.True(t, ok)
	assert.Equal(t, "arm64", arch)
}

func TestLoadFromDirectoryResolvesParentRefInDeps(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: project\nname: app\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/sub/re.yml", []byte("type: executable\nname: sub\ndeps:\n  - .sibling\n"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	app, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.NoError(t, app.LoadSourceTree(fs, loader, nil))

	require.Len(t, app.Children, 1)
	sub := app.Children[0]
	require.Len(t, sub.Dependencies, 1)
	assert.Equal(t, "app.sibling", sub.Dependencies[0].Name)
}

func TestLoadSourceTreeCollectsFilesAndSkipsDotfiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: executable\nname: app\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/main.cpp", []byte("int main() {}"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/.gitignore", []byte("*"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.NoError(t, tgt.LoadSourceTree(fs, loader, nil))

	// re.yml itself is walked as a plain file alongside main.cpp; only
	// the dotfile is excluded. Providers ignore sources whose extension
	// they don't recognize, so re.yml's presence here is harmless.
	require.Len(t, tgt.Sources, 2)
	var cppSource *SourceFile
	for i := range tgt.Sources {
		if tgt.Sources[i].Extension == "cpp" {
			cppSource = &tgt.Sources[i]
		}
	}
	require.NotNil(t, cppSource)
	assert.Equal(t, "/app/main.cpp", cppSource.Path)
}

func TestLoadSourceTreeSkipsIgnoredSubtree(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: executable\nname: app\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/vendor/.re-ignore-this", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/vendor/dep.cpp", []byte("// vendored"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.NoError(t, tgt.LoadSourceTree(fs, loader, nil))

	require.Len(t, tgt.Sources, 1)
	assert.Equal(t, "/app/re.yml", tgt.Sources[0].Path)
	assert.Empty(t, tgt.Children)
}

func TestLoadSourceTreeRecursesIntoPlainSubdirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: executable\nname: app\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/src/main.cpp", []byte("int main() {}"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/src/util.cpp", []byte("void util() {}"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.NoError(t, tgt.LoadSourceTree(fs, loader, nil))

	// re.yml (at the target's own root) plus the two files under src/.
	require.Len(t, tgt.Sources, 3)
	assert.Empty(t, tgt.Children)
}

func TestLoadSourceTreeLoadsNestedTargetAsChild(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: project\nname: app\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/sub/re.yml", []byte("type: executable\nname: sub\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/sub/main.cpp", []byte("int main() {}"), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)
	require.NoError(t, tgt.LoadSourceTree(fs, loader, nil))

	require.Len(t, tgt.Children, 1)
	child := tgt.Children[0]
	assert.Equal(t, "sub", child.Name)
	assert.Equal(t, "app.sub", child.Module)
	assert.Same(t, tgt, child.Parent)
	// sub's re.yml plus its main.cpp.
	assert.Len(t, child.Sources, 2)
	// app's own re.yml, since the sub directory was consumed as a child
	// rather than contributing to app's source list.
	assert.Len(t, tgt.Sources, 1)
}

type fakeMiddleware struct {
	supportsPath string
	loaded       *Target
}

func (f *fakeMiddleware) Supports(path string) bool {
	return path == f.supportsPath
}

func (f *fakeMiddleware) Load(fs afero.Fs, path string, ancestor *Target) (*Target, error) {
	f.loaded = New(path, "middleware-target", Custom, nil, ancestor)
	return f.loaded, nil
}

func TestLoadSourceTreeDefersToMiddleware(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/re.yml", []byte("type: project\nname: app\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/plugin/build.gradle", []byte(""), 0o644))

	loader := yamlconfig.NewLoader(fs)
	tgt, err := LoadFromDirectory(fs, loader, "/app", nil)
	require.NoError(t, err)

	mw := &fakeMiddleware{supportsPath: "/app/plugin"}
	require.NoError(t, tgt.LoadSourceTree(fs, loader, mw))

	require.Len(t, tgt.Children, 1)
	assert.Equal(t, "middleware-target", tgt.Children[0].Name)
	assert.NotNil(t, mw.loaded)
}
