package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the TF-IDF vocabulary on every indexed document",
		Long: `Train the TF-IDF embedder's vocabulary on every document text
already stored for FTS and report how many documents were used. The
trained vocabulary and IDF weights are held in this process only; they
are not written to disk, so later commands start again from the seeded
vocabulary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runTrain(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	corpus, err := a.Store.GetAllDocumentTexts(ctx)
	if err != nil {
		return fmt.Errorf("load document texts: %w", err)
	}

	if _, err := a.Embed.Get(ctx); err != nil {
		return fmt.Errorf("select embedder: %w", err)
	}
	a.Embed.TrainVocabulary(corpus)

	fmt.Fprintf(cmd.OutOrStdout(), "Trained vocabulary on %d documents.\n", len(corpus))
	return nil
}
