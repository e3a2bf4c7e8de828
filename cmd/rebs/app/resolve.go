package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osdeverr/rebs/internal/rlog"
)

// NewResolveCommand walks the dependency set rooted at --root and prints
// it in resolution order. With --check it uses the no-resolve walker
// (spec.md §4.6's CollectResolvedDependencySet), which fails fast with an
// UncachedDependencyException instead of fetching anything, useful for
// verifying a lockfile/version-cache is complete before a network-isolated
// build.
func NewResolveCommand(g *Globals) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve (or verify the resolution of) the dependency set rooted at --root",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRig(g)
			if err != nil {
				return err
			}

			var modules []string
			if check {
				resolved, err := r.Env.CollectResolvedDependencySet(r.Root)
				if err != nil {
					return err
				}
				for _, t := range resolved {
					modules = append(modules, t.Module)
				}
			} else {
				resolved, err := r.Env.CollectDependencySet(r.Root)
				if err != nil {
					return err
				}
				for _, t := range resolved {
					modules = append(modules, t.Module)
				}
				if err := r.saveCaches(); err != nil {
					return err
				}
			}

			rlog.Info("resolved %d target(s)", len(modules))
			for _, m := range modules {
				fmt.Println(m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Fail instead of fetching when a dependency isn't already cached")

	return cmd
}
