package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the rebs release version, set by build tooling via ldflags in
// production builds; it stays at "dev" for a plain `go build`.
var Version = "dev"

// NewVersionCommand prints the rebs version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rebs version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}
