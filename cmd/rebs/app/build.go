package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osdeverr/rebs/internal/assembler"
	"github.com/osdeverr/rebs/internal/rlog"
)

// NewBuildCommand resolves the target graph rooted at --root, assembles a
// build description, and reports the targets it would hand to an external
// build executor (spec.md §4.7). rebs itself never invokes a compiler; it
// only produces the description a ninja-like tool consumes.
func NewBuildCommand(g *Globals) *cobra.Command {
	var descOut string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble a build description for the target graph rooted at --root",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRig(g)
			if err != nil {
				return err
			}

			asm := assembler.New(r.Env, newAssemblerRegistry(), r.Ctx)
			desc, err := asm.Assemble(r.Root)
			if err != nil {
				return err
			}

			if err := r.saveCaches(); err != nil {
				return err
			}

			rlog.Info("assembled %d build target(s), %d artifact(s)", len(desc.Targets), len(desc.Artifacts))
			for module, artifact := range desc.Artifacts {
				fmt.Printf("%s -> %s\n", module, artifact)
			}

			if descOut != "" {
				if err := writeBuildDesc(r.Env.Fs, descOut, desc); err != nil {
					return err
				}
				rlog.Info("wrote build description to %s", descOut)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&descOut, "out", "", "Write the assembled build description as JSON to this path")

	return cmd
}
