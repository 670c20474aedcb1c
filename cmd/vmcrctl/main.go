// Command vmcrctl is the operator-facing diagnostic CLI: it talks to a
// running coordinator's diagnostic socket over HTTP, the way moby-moby
// splits its daemon API server from the docker CLI client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socketPath string

	root := &cobra.Command{
		Use:   "vmcrctl",
		Short: "Operate a running checkpoint/restore coordinator",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/run/vmcr/diagnostic.sock", "diagnostic socket path")

	root.AddCommand(newCheckpointCmd(&socketPath))
	root.AddCommand(newStatusCmd(&socketPath))
	root.AddCommand(newRestoreInfoCmd(&socketPath))
	return root
}
