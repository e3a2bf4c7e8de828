// Package gitresolver implements the "git"/"github" namespace resolvers: a
// dependency fetched from a VCS repository, checked out at a resolved
// SemVer tag, memoized by spec.md §4.5's VCS caching key.
package gitresolver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
)

// URLFormatter turns a dependency name into a clone URL. "github" and
// "git" namespaces share this resolver with different formatters:
// github uses "https://github.com/<name>.git", plain git dependencies
// carry the full URL as their name.
type URLFormatter func(name string) string

// GitHubFormatter builds an https clone URL from an "owner/repo" name.
func GitHubFormatter(name string) string {
	return fmt.Sprintf("https://github.com/%s.git", name)
}

// IdentityFormatter treats the dependency name as the clone URL verbatim.
func IdentityFormatter(name string) string { return name }

// Resolver clones (or reuses a cached clone of) a git repository, checks
// out the SemVer-selected tag, and loads the (possibly cutout-refined)
// result as a Target.
type Resolver struct {
	Fs        afero.Fs
	Loader    *yamlconfig.Loader
	CacheDir  string
	FormatURL URLFormatter

	ListTags func(url string) ([]string, error)

	resolved map[string]*target.Target
}

// New builds a git-backed resolver. cacheDir is where repositories are
// cloned to (one subdirectory per repository); formatURL turns a
// dependency name into a clone URL.
func New(fs afero.Fs, loader *yamlconfig.Loader, cacheDir string, formatURL URLFormatter) *Resolver {
	return &Resolver{
		Fs:        fs,
		Loader:    loader,
		CacheDir:  cacheDir,
		FormatURL: formatURL,
		resolved:  make(map[string]*target.Target),
	}
}

func (r *Resolver) Resolve(from *target.Target, dep *depstring.TargetDependency, cache *semverselect.Cache) (*target.Target, error) {
	url := r.FormatURL(dep.Name)
	tag := dep.Version

	if dep.VersionKind != depstring.RawTag {
		resolvedTag, err := cache.Resolve(dep, func() ([]string, error) {
			return r.listTags(url)
		})
		if err != nil {
			return nil, err
		}
		tag = resolvedTag
	}

	cutout, _ := dep.CutoutFilter()
	arch, _ := from.BuildScope.Get("arch")
	platform, _ := from.BuildScope.Get("platform")
	config, _ := from.BuildScope.Get("configuration")

	key := fmt.Sprintf("%s@%s|%s-%s-%s", dep.Name, tag, arch, platform, config)
	if dep.ExtraConfigHash != "" {
		key += "|ecfg-" + dep.ExtraConfigHash
	}
	if cutout != "" {
		key += "|" + cutout
	}

	if existing, ok := r.resolved[key]; ok {
		return existing, nil
	}

	repoPath := filepath.Join(r.CacheDir, sanitize(dep.Name))
	if err := r.ensureCheckout(url, repoPath, tag); err != nil {
		return nil, errs.DependencyWrap(from.Module, err, "failed to check out %s@%s", dep.Name, tag)
	}

	loadPath := repoPath
	if cutout != "" {
		loadPath = filepath.Join(repoPath, cutout)
	}

	resolved, err := target.LoadFromDirectory(r.Fs, r.Loader, loadPath, nil)
	if err != nil {
		return nil, err
	}

	r.resolved[key] = resolved
	return resolved, nil
}

func (r *Resolver) HandlesFilters() bool { return false }

// SaveToPath clones dep at its resolved location into targetDir, for
// global-package installation (spec.md §6.6).
func (r *Resolver) SaveToPath(dep *depstring.TargetDependency, targetDir string) (bool, error) {
	url := r.FormatURL(dep.Name)
	if err := r.ensureCheckout(url, targetDir, dep.Version); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) ensureCheckout(url, path, tag string) error {
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return err
		}
		return checkoutTag(repo, tag)
	}

	repo, err := git.PlainClone(path, false, &git.CloneOptions{URL: url})
	if err != nil {
		return err
	}
	if tag == "" {
		return nil
	}
	return checkoutTag(repo, tag)
}

func checkoutTag(repo *git.Repository, tag string) error {
	if tag == "" {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	ref, err := repo.Reference(plumbing.NewTagReferenceName(tag), true)
	if err == nil {
		return wt.Checkout(&git.CheckoutOptions{Hash: ref.Hash()})
	}
	return wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(tag)})
}

func (r *Resolver) listTags(url string) ([]string, error) {
	if r.ListTags != nil {
		return r.ListTags(url)
	}

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	return tags, nil
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for _, c := range []byte(name) {
		if c == '/' || c == ':' {
			out = append(out, '_')
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}
