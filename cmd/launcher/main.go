// Package main is the entry point for the jobdeck launcher.
// The launcher runs the jobs declared in its configuration file and serves the read API.
package main

import (
	"jobdeck/cmd/launcher/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
