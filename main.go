// The main package for the psl-catalog executable.
package main

import (
	"github.com/JakeFAU/psl-catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
