// Package main provides the entry point for the Prismata CLI.
package main

import (
	"fmt"
	"os"

	"github.com/codeweiz/prismata/cmd/prismata/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
