package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show row counts across the indexed tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.Store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Packages:  %d\n", stats.Packages)
	fmt.Fprintf(w, "Modules:   %d\n", stats.Modules)
	fmt.Fprintf(w, "Functions: %d\n", stats.Functions)
	fmt.Fprintf(w, "Types:     %d\n", stats.Types)
	fmt.Fprintf(w, "Examples:  %d\n", stats.Examples)
	return nil
}
