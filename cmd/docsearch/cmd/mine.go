package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dregistry/docsearch/internal/patterns"
)

func newMinePatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine-patterns",
		Short: "Mine common import groups and function relationships",
		Long: `Run the post-ingestion pattern-mining pass: group code examples
by commonly co-occurring imports, store the resulting usage patterns,
and mine function-to-function relationships from shared modules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMinePatterns(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runMinePatterns(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	miner := patterns.New(a.Store)
	result, err := miner.Run(ctx)
	if err != nil {
		return fmt.Errorf("mine patterns: %w", err)
	}

	return printJSON(cmd, result)
}
