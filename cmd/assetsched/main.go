// Command assetsched evaluates asset automation conditions and requests runs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/assetsched/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
