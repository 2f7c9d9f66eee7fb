// Package main is the entry point for the codemap CLI.
package main

import (
	"os"

	"github.com/codemaphq/codemap/cmd/codemap/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
