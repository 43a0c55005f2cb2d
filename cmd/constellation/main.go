// Package main provides the entry point for the constellation CLI.
package main

import (
	"os"

	"github.com/constellation-sdi/constellation/cmd/constellation/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
