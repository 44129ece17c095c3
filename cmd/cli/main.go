// Package main is the entry point for deckctl.
// deckctl is the terminal client for a running jobdeck launcher's read API.
package main

import (
	"jobdeck/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
