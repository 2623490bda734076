package main

import (
	"fmt"
	"os"

	"github.com/adamancini/hotpush/internal/cmd"
)

// Set with -ldflags -X at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cmd.Execute(version, commit, date); err != nil {
		fmt.Fprintf(os.Stderr, "hotpush: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
