// ABOUTME: Entry point for moltbot-gateway, the multi-channel bot control plane
// ABOUTME: Builds the cobra command tree and maps errors to a non-zero exit

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
