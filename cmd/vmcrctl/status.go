package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newStatusCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the most recent checkpoint/restore attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp statusResponse
			if err := requestJSON(cmd.Context(), *socketPath, http.MethodGet, "/status", &resp); err != nil {
				return err
			}
			if !resp.Attempted {
				fmt.Fprintln(cmd.OutOrStdout(), "no checkpoint attempt has run yet")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "last attempt: %s\n", resp.LastAttemptID)
			fmt.Fprintf(cmd.OutOrStdout(), "last result: %s\n", resp.LastResultCode)
			if resp.LastError != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "last error: %s\n", resp.LastError)
			}
			return nil
		},
	}
}
