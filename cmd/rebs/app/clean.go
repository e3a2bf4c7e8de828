package app

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/rlog"
)

// NewCleanCommand removes the computed out-dir of --root's resolved
// configuration (spec.md §6.5's out-dir/out-dir-triplet convention:
// <target-path>/out/<arch>-<platform>-<configuration> unless overridden).
func NewCleanCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove --root's output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRig(g)
			if err != nil {
				return err
			}

			resolved, err := r.Root.ResolvedConfig(r.Ctx)
			if err != nil {
				return err
			}

			outDir, ok := resolved.GetString("out-dir")
			if !ok {
				outDir = filepath.Join(r.Root.Path, "out", tripletName(r.Ctx))
			} else if v, err := r.Root.BuildScope.Resolve(outDir); err == nil {
				outDir = v
			}

			if err := r.Env.Fs.RemoveAll(outDir); err != nil {
				return err
			}

			rlog.Info("removed %s", outDir)
			return nil
		},
	}
}

func tripletName(ctx cfgresolve.Context) string {
	return ctx["arch"] + "-" + ctx["platform"] + "-" + ctx["config"]
}
