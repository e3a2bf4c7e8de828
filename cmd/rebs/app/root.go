// Package app wires the rebs command-line tool together, grounded on the
// teacher's cmd/defuzz/app shape: a thin root command holding persistent
// flags, one file per subcommand, and a flags-override-cached-params
// pattern where command-line flags win over re.user.yml when both are set.
package app

import (
	"github.com/spf13/cobra"

	"github.com/osdeverr/rebs/internal/rlog"
)

// Globals holds the flags every subcommand needs to build an Environment.
type Globals struct {
	Root     string
	Arch     string
	Platform string
	Config   string
	LogLevel string
}

// NewRootCommand creates the "rebs" root command and its subcommands.
func NewRootCommand() *cobra.Command {
	g := &Globals{}

	cmd := &cobra.Command{
		Use:   "rebs",
		Short: "A polyglot build orchestrator.",
		Long:  `rebs resolves a target graph, assembles a build description, and installs the results.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			rlog.Init(g.LogLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&g.Root, "root", ".", "Project root directory")
	cmd.PersistentFlags().StringVar(&g.Arch, "arch", "", "Target architecture (overrides cached re.user.yml value)")
	cmd.PersistentFlags().StringVar(&g.Platform, "platform", "", "Target platform (overrides cached re.user.yml value)")
	cmd.PersistentFlags().StringVar(&g.Config, "config", "", "Build configuration (debug/release, overrides cached value)")
	cmd.PersistentFlags().StringVar(&g.LogLevel, "log-level", "info", "Output level: off|error|warn|info|debug|all")

	cmd.AddCommand(NewBuildCommand(g))
	cmd.AddCommand(NewInstallCommand(g))
	cmd.AddCommand(NewResolveCommand(g))
	cmd.AddCommand(NewCleanCommand(g))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
