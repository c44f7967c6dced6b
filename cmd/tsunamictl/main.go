// Package main is the entry point for the tsunamictl CLI.
package main

import (
	"os"

	"github.com/SimonXuku/tsunami/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
