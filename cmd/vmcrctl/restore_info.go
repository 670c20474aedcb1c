package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/restorepoint/vmcr/internal/restoreblob"
)

// newRestoreInfoCmd reads a serialized restore blob straight off disk (the
// shared-memory segment is unlinked the instant the restored process opens
// it, so this is meant for inspecting a copy saved for debugging) and
// prints a human-readable summary.
func newRestoreInfoCmd(_ *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-info <blob-file>",
		Short: "Inspect a saved restore-parameter blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("restore-info: read %s: %w", args[0], err)
			}

			blob, err := restoreblob.Parse(buf)
			if err != nil {
				return fmt.Errorf("restore-info: parse %s: %w", args[0], err)
			}
			applied, err := restoreblob.Apply(blob)
			if err != nil {
				return fmt.Errorf("restore-info: apply %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "blob size:    %s\n", units.HumanSize(float64(len(buf))))
			fmt.Fprintf(out, "flags:        %d\n", len(applied.Flags))
			fmt.Fprintf(out, "properties:   %d\n", len(applied.Properties))
			fmt.Fprintf(out, "env entries:  %d\n", len(applied.Env))
			if applied.EntryPoint != "" {
				fmt.Fprintf(out, "entry point:  %s %s\n", applied.EntryPoint, strings.Join(applied.Args, " "))
			} else {
				fmt.Fprintln(out, "entry point:  (unchanged)")
			}
			if applied.HasClock() {
				fmt.Fprintf(out, "restore time: %s\n", applied.WallTime.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}
