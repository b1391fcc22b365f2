// Package main is the entry point for the autodoc CLI.
package main

import (
	"github.com/Emberfield/autodoc/internal/cmd"
)

func main() {
	cmd.Execute()
}
