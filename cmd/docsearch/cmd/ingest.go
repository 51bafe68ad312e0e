package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dregistry/docsearch/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <package>",
		Short: "Fetch and index one package",
		Long: `Fetch a single package's metadata and source from the registry,
parse it into the store's packages/modules/functions/types/examples
tables, and embed everything for hybrid search.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, name string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pipeline := ingest.New(a.Store, a.Crawler, a.Embed)

	result, err := pipeline.IngestPackage(ctx, name)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", name, err)
	}

	return printJSON(cmd, result)
}

func newIngestAllCmd() *cobra.Command {
	var limit int
	var fresh bool

	cmd := &cobra.Command{
		Use:   "ingest-all",
		Short: "Fetch and index every package in the registry",
		Long: `Walk the registry's full package list and ingest each one in
turn, resuming from the last checkpoint unless --fresh is given. A
package that fails to ingest is recorded and the run continues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestAll(cmd.Context(), cmd, limit, fresh)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of packages to ingest (0 = no limit)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore any checkpoint and start from the beginning")

	return cmd
}

func runIngestAll(ctx context.Context, cmd *cobra.Command, limit int, fresh bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pipeline := ingest.New(a.Store, a.Crawler, a.Embed)

	result, err := pipeline.IngestAll(ctx, ingest.BatchOptions{Limit: limit, Fresh: fresh})
	if err != nil {
		return fmt.Errorf("ingest all: %w", err)
	}

	slog.Info("ingest_all_complete",
		slog.Int("total", result.TotalPackages),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))

	return printJSON(cmd, result)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
