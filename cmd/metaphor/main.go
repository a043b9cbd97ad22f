// Command metaphor evaluates a verb metaphor detection model on the VUAMC
// shared task data and scores prediction tables.
package main

import (
	"fmt"
	"os"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := New(fmt.Sprintf("%s (%s, %s)", version, commit, date)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
