// Package main is the entry point for the costcalc CLI.
package main

import (
	"os"

	"github.com/Simplici0/importcost/cmd/costcalc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
