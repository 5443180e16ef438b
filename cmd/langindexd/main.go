// Package main provides the entry point for the langindexd CLI.
package main

import (
	"os"

	"github.com/ralts/langindex/cmd/langindexd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
