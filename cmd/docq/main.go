// Package main provides the entry point for the docq CLI.
package main

import (
	"os"

	"github.com/docq/docq/cmd/docq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
