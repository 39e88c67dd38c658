// Command formsync compiles, runs and verifies form rule sets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/formsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
