package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/alvmarrod/peer-weaver/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "peerweaver version %s (%s)\n", version.Version, runtime.Version())
		},
	}
}
