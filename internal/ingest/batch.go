package ingest

import (
	"context"
	"log/slog"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
	"github.com/dregistry/docsearch/internal/store"
)

// summaryInterval is how often a running summary is printed during a batch
// run (spec §4.6: "every 10 packages").
const summaryInterval = 10

// IngestAll fetches the registry's full package list and ingests each one
// in sequence, recording per-package success or failure without aborting
// the batch. If opts.Fresh is false and the latest progress row is
// `running` with a non-empty last_package, packages up to and including
// that one are skipped as already processed (resume).
func (p *Pipeline) IngestAll(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	names, err := p.Crawler.ListPackages(ctx)
	if err != nil {
		return nil, err
	}

	if !opts.Fresh {
		names = p.skipResumed(ctx, names)
	}
	if opts.Limit > 0 && opts.Limit < len(names) {
		names = names[:opts.Limit]
	}

	batch := &BatchResult{TotalPackages: len(names)}

	if _, err := p.Store.SaveProgress(ctx, &store.IngestionProgress{
		Status:        store.ProgressRunning,
		TotalPackages: len(names),
	}); err != nil {
		slog.Warn("ingest_batch_progress_init_failed", slog.String("error", err.Error()))
	}

	for i, name := range names {
		result, err := p.IngestPackage(ctx, name)
		if err != nil {
			batch.Failed++
			slog.Warn("ingest_package_failed", slog.String("package", name), slog.String("error", err.Error()))
		} else {
			batch.Succeeded++
		}
		batch.Results = append(batch.Results, *result)

		if _, saveErr := p.Store.SaveProgress(ctx, &store.IngestionProgress{
			LastPackage:       name,
			PackagesProcessed: i + 1,
			TotalPackages:     len(names),
			Status:            store.ProgressRunning,
		}); saveErr != nil {
			slog.Warn("ingest_batch_progress_update_failed", slog.String("package", name), slog.String("error", saveErr.Error()))
		}

		if (i+1)%summaryInterval == 0 {
			p.logRunningSummary(ctx, i+1, len(names))
		}
	}

	if _, err := p.Store.SaveProgress(ctx, &store.IngestionProgress{
		LastPackage:       lastOrEmpty(names),
		PackagesProcessed: len(names),
		TotalPackages:     len(names),
		Status:            store.ProgressCompleted,
	}); err != nil {
		slog.Warn("ingest_batch_progress_complete_failed", slog.String("error", err.Error()))
	}

	return batch, nil
}

// skipResumed drops packages up to and including the latest progress row's
// last_package, when that row is still `running` (spec §4.6 resume). A
// corrupt or unreadable progress row is treated as idle — start fresh
// (spec §7 resume-state corruption).
func (p *Pipeline) skipResumed(ctx context.Context, names []string) []string {
	progress, err := p.Store.LatestProgress(ctx)
	if err != nil {
		wrapped := searcherrors.Wrap(searcherrors.ErrCodeProgressCorrupt, err)
		slog.Warn("ingest_progress_unreadable", slog.String("error", wrapped.Error()))
		return names
	}
	if progress == nil || progress.Status != store.ProgressRunning || progress.LastPackage == "" {
		return names
	}

	for i, name := range names {
		if name == progress.LastPackage {
			return names[i+1:]
		}
	}
	return names
}

func (p *Pipeline) logRunningSummary(ctx context.Context, processed, total int) {
	stats, err := p.Store.GetStats(ctx)
	if err != nil {
		slog.Warn("ingest_stats_unavailable", slog.String("error", err.Error()))
		return
	}
	slog.Info("ingest_batch_progress",
		slog.Int("processed", processed), slog.Int("total", total),
		slog.Int("packages", stats.Packages), slog.Int("modules", stats.Modules),
		slog.Int("functions", stats.Functions), slog.Int("types", stats.Types),
		slog.Int("examples", stats.Examples))
}

func lastOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}
