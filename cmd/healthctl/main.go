// Command healthctl runs the analytics engine over a local metrics file.
package main

import (
	"fmt"
	"os"

	"github.com/healthtrack/healthtrack-analytics/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
