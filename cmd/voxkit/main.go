// Package main is the entry point for the voxkit CLI.
//
// Usage:
//
//	voxkit [flags] <command> [args]
//
// Commands:
//
//	tail     - Follow a session feed and render the reconciled conversation
//	history  - Inspect a room's persisted conversation snapshot
//	send     - Publish one outbound message to the feed
//	clear    - Delete a room's persisted snapshot
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/voxkit/voxkit/cmd/voxkit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
