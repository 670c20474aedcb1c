package main

import (
	"fmt"
	"net/http"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/spf13/cobra"
)

func newCheckpointCmd(socketPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Request a checkpoint attempt from the running coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/checkpoint"
			if dryRun {
				path += "?dry_run=true"
			}

			var resp checkpointResponse
			err := requestJSON(cmd.Context(), *socketPath, http.MethodPost, path, &resp)
			if err != nil && !cerrdefs.IsAborted(err) {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", resp.Code)
			if len(resp.FailureMessages) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "failures:\n  %s\n", strings.Join(resp.FailureMessages, "\n  "))
			}
			if resp.Error != "" {
				return fmt.Errorf("checkpoint reported: %s", resp.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without invoking the engine")
	return cmd
}
