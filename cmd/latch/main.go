// Command latch runs, replays and tests gesture hysteresis rule sets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/latch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
