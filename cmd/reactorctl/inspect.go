package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reactorcore/engine/internal/diagnostics"
)

func inspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <diagnostics.db>",
		Short: "List run summaries recorded by a previous `run --diagnostics` invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := diagnostics.Open(args[0])
			if err != nil {
				return fmt.Errorf("open diagnostics store: %w", err)
			}
			defer store.Close()

			runs, err := store.List()
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			for _, r := range runs {
				status := "ok"
				if r.Err != "" {
					status = "error: " + r.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s  %s -> %s  %s\n",
					r.RunID, r.Scenario, r.StartedAt.Format("15:04:05.000"), r.FinishedAt.Format("15:04:05.000"), status)
			}
			return nil
		},
	}
	return cmd
}
