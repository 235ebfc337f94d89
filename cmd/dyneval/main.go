// Command dyneval evaluates dynamic complication data records.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dyneval/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
