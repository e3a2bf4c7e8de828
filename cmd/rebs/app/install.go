package app

import (
	"github.com/spf13/cobra"

	"github.com/osdeverr/rebs/internal/rlog"
)

// NewInstallCommand runs the post-install action phase of spec.md §4.6
// for the root target and every one of its dependencies.
func NewInstallCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the root target's artifacts and run its post-install actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRig(g)
			if err != nil {
				return err
			}

			if err := r.Env.Install(r.Root, r.Ctx); err != nil {
				return err
			}

			if err := r.saveCaches(); err != nil {
				return err
			}

			rlog.Info("installed %s", r.Root.Module)
			return nil
		},
	}
}
