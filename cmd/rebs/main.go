package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/osdeverr/rebs/cmd/rebs/app"
	"github.com/osdeverr/rebs/internal/errs"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		var exc *errs.Exception
		if errors.As(err, &exc) {
			os.Exit(exc.Kind.ExitCode())
		}
		os.Exit(1)
	}
}
