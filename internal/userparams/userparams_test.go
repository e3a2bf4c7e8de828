package userparams

import (
	"testing"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	loader := yamlconfig.NewLoader(fs)
	p := New(fs, loader, "/proj")
	require.NoError(t, p.Load())
	_, ok := p.Get("arch")
	assert.False(t, ok)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	fs := afero.NewMemMapFs()
	loader := yamlconfig.NewLoader(fs)
	p := New(fs, loader, "/proj")
	p.Set("arch", "arm64")
	p.Set("platform", "linux")
	require.NoError(t, p.Save())

	reloaded := New(fs, loader, "/proj")
	require.NoError(t, reloaded.Load())

	arch, ok := reloaded.Get("arch")
	require.True(t, ok)
	assert.Equal(t, "arm64", arch)

	platform, ok := reloaded.Get("platform")
	require.True(t, ok)
	assert.Equal(t, "linux", platform)
}

func TestAsContextOnlyIncludesKnownCategories(t *testing.T) {
	fs := afero.NewMemMapFs()
	loader := yamlconfig.NewLoader(fs)
	p := New(fs, loader, "/proj")
	p.Set("arch", "x64")
	p.Set("unrelated-key", "value")

	ctx := p.AsContext(cfgresolve.DefaultCategories)
	assert.Equal(t, "x64", ctx["arch"])
	_, ok := ctx["unrelated-key"]
	assert.False(t, ok)
}

func TestDefaultTagRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, ok, err := ReadDefaultTag(fs, "/install", "zlib")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteDefaultTag(fs, "/install", "zlib", "1.2.11"))

	tag, ok, err := ReadDefaultTag(fs, "/install", "zlib")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.2.11", tag)
}
