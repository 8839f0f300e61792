// Package main is the condor CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/condorhq/condor/internal/cli"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	root := cli.NewRootCommand()
	root.Version = Version

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
