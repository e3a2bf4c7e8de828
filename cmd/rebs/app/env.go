package app

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/osdeverr/rebs/internal/assembler"
	"github.com/osdeverr/rebs/internal/buildenv"
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/providers"
	"github.com/osdeverr/rebs/internal/resolvers/archcoerced"
	"github.com/osdeverr/rebs/internal/resolvers/conanresolver"
	"github.com/osdeverr/rebs/internal/resolvers/fsresolver"
	"github.com/osdeverr/rebs/internal/resolvers/gitresolver"
	"github.com/osdeverr/rebs/internal/rlog"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/osdeverr/rebs/internal/userparams"
	"github.com/osdeverr/rebs/internal/versioncache"
	"github.com/osdeverr/rebs/internal/yamlconfig"
)

// stateDir is where re.user.yml, the version cache, and resolver checkout
// caches live, mirroring the original tool's dotfile-under-root convention.
const stateDir = ".re"

// rig bundles everything a subcommand needs once the environment is loaded:
// the buildenv.Environment itself, the root target, the resolved context,
// and the caches that must be saved back at the end of a run.
type rig struct {
	Env      *buildenv.Environment
	Root     *target.Target
	Ctx      cfgresolve.Context
	Params   *userparams.Params
	Versions *versioncache.Store
}

// buildRig loads the core project (if any) and the root target at g.Root,
// registers every resolver and language provider, and hydrates the cached
// context parameters and version cache, exactly the sequence
// `rebs build`/`install`/`resolve` all need before doing their own work.
func buildRig(g *Globals) (*rig, error) {
	fs := afero.NewOsFs()
	loader := yamlconfig.NewLoader(fs)
	env := buildenv.New(fs, loader)

	rootAbs, err := filepath.Abs(g.Root)
	if err != nil {
		return nil, err
	}

	installDir := filepath.Join(rootAbs, stateDir, "install")
	cacheDir := filepath.Join(rootAbs, stateDir, "cache")

	env.Resolvers.Register("fs", fsresolver.New(fs, loader, rootAbs))
	env.Resolvers.Register("git", gitresolver.New(fs, loader, cacheDir, gitresolver.IdentityFormatter))
	env.Resolvers.Register("github", gitresolver.New(fs, loader, cacheDir, gitresolver.GitHubFormatter))
	env.Resolvers.Register("conan", conanresolver.New("conan", installDir))
	env.Resolvers.Register("arch-coerced", archcoerced.New())

	root, err := env.LoadRoot(rootAbs)
	if err != nil {
		return nil, err
	}

	params := userparams.New(fs, loader, rootAbs)
	if err := params.Load(); err != nil {
		return nil, err
	}

	ctx := params.AsContext(cfgresolve.DefaultCategories)
	if g.Arch != "" {
		ctx["arch"] = g.Arch
		params.Set("arch", g.Arch)
	}
	if g.Platform != "" {
		ctx["platform"] = g.Platform
		params.Set("platform", g.Platform)
	}
	if g.Config != "" {
		ctx["config"] = g.Config
		params.Set("config", g.Config)
	}
	if err := params.Save(); err != nil {
		return nil, err
	}

	env.Ctx = ctx

	versions := versioncache.NewStore(fs, filepath.Join(rootAbs, stateDir))
	if err := versions.Load(); err != nil {
		return nil, err
	}
	versions.HydrateCache(env.Versions)

	rlog.Info("loaded root %s (arch=%s platform=%s config=%s)", root.Module, ctx["arch"], ctx["platform"], ctx["config"])

	return &rig{Env: env, Root: root, Ctx: ctx, Params: params, Versions: versions}, nil
}

// saveCaches harvests the run's version-cache entries back to disk. Every
// subcommand that resolves dependencies should defer this.
func (r *rig) saveCaches() error {
	r.Versions.Harvest(r.Env.Versions)
	return r.Versions.Save()
}

// newAssemblerRegistry registers every language provider this build of rebs
// knows how to assemble rules for.
func newAssemblerRegistry() *assembler.Registry {
	reg := assembler.NewRegistry()
	reg.Register(providers.NewCxx())
	return reg
}
