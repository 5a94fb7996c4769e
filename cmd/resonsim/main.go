// Command resonsim runs resource/process economy simulations.
package main

import (
	"fmt"
	"os"

	"github.com/talgya/reson/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
