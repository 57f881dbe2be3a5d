// Package main provides the entry point for the ember CLI.
package main

import (
	"os"

	"github.com/emberdb/ember/cmd/ember/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
