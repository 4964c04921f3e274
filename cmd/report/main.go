// Command report renders and runs grouping and union reports.
package main

import (
	"fmt"
	"os"

	"github.com/atk4/report/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
