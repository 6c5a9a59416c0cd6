// Command marketfeed browses and searches the student marketplace catalog.
//
// Usage:
//
//	marketfeed feed                  Load the home collections
//	marketfeed feed --filter good    Filter every collection
//	marketfeed search <query>        Search with pagination
//	marketfeed recent [input]        Recent searches, fuzzy ranked
//	marketfeed browse                Terminal UI
//	marketfeed cache list|clear      Inspect the local cache
//	marketfeed config show|generate  Resolved configuration
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd, cleanup := newRootCmd()
	err := cmd.Execute()
	cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "marketfeed:", err)
		os.Exit(1)
	}
}
