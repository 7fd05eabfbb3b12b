// Command touchdelay validates record schemas, applies touch workloads to a
// store and inspects the flush journal.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/touchdelay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
