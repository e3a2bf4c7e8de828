package buildenv

import (
	"path/filepath"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/spf13/afero"
)

// Install performs spec.md §4.6's "Install flow": for root and every
// member of its dependency set, copy artifacts to the target's declared
// install path (recursive, skipping files that already exist at the
// destination), then run its post-install actions.
func (e *Environment) Install(root *target.Target, ctx cfgresolve.Context) error {
	members, err := e.CollectDependencySet(root)
	if err != nil {
		return err
	}

	for _, member := range members {
		resolved, err := member.ResolvedConfig(ctx)
		if err != nil {
			return err
		}

		installPaths, ok := resolved.GetSequence("install")
		if ok {
			for _, p := range installPaths {
				dest, _ := p.(string)
				dest = e.resolvePath(member, dest)
				if err := copyPathSkipExisting(e.Fs, e.artifactDir(member), dest); err != nil {
					return err
				}
			}
		}

		actions, err := ParseActions(resolved, "default")
		if err != nil {
			return err
		}
		if err := e.RunActions(member, actions["post-install"], "post-install"); err != nil {
			return err
		}
	}

	return nil
}

func copyPathSkipExisting(fs afero.Fs, from, to string) error {
	info, err := fs.Stat(from)
	if err != nil {
		return nil
	}

	if !info.IsDir() {
		if exists, _ := afero.Exists(fs, to); exists {
			return nil
		}
		return copyFile(fs, from, to, info)
	}

	entries, err := afero.ReadDir(fs, from)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(to, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyPathSkipExisting(fs, filepath.Join(from, entry.Name()), filepath.Join(to, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
