// Command policybench drives a policy stack with a synthetic block workload,
// persists its mappings and hints, and inspects saved metadata.
package main

import (
	"fmt"
	"os"

	"github.com/IvanBrykalov/policystack/cmd/policybench/commands"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
