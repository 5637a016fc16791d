package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shpitdev/contact-enricher/internal/enrich/batch"
	"github.com/shpitdev/contact-enricher/internal/pipeline"
)

// RunLocal reads a local input CSV of businesses and writes a local output CSV of contacts.
//
// The output is written even when the batch falls below opts.MinSuccessRate; the threshold
// error is returned afterwards.
func RunLocal(ctx context.Context, inputPath, outputPath string, opts pipeline.Options, b pipeline.Batcher, logger *slog.Logger) (batch.Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inF, err := os.Open(inputPath)
	if err != nil {
		return batch.Summary{}, err
	}
	defer func() {
		_ = inF.Close()
	}()

	reqs, err := pipeline.ReadRequestsCSV(inF)
	if err != nil {
		return batch.Summary{}, err
	}
	logger.Info("batch start", "input", inputPath, "rows", len(reqs), "workers", opts.Workers, "rate_limit_rps", opts.RateLimitRPS)

	start := time.Now()
	rows, summary, runErr := pipeline.EnrichRequests(ctx, reqs, b, opts)
	if rows == nil && runErr != nil {
		return summary, runErr
	}

	outF, err := os.Create(outputPath)
	if err != nil {
		return summary, err
	}
	defer func() {
		_ = outF.Close()
	}()
	if err := pipeline.WriteCSV(outF, rows); err != nil {
		return summary, err
	}
	if err := outF.Close(); err != nil {
		return summary, err
	}

	logger.Info("batch complete",
		"output", outputPath,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"success_rate", summary.SuccessRate(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return summary, runErr
}
