// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xchem/eventmaphdr/internal/config"
	"github.com/xchem/eventmaphdr/internal/fsutil"
	"github.com/xchem/eventmaphdr/internal/journal"
	xlog "github.com/xchem/eventmaphdr/internal/log"
	"github.com/xchem/eventmaphdr/internal/metrics"
	"github.com/xchem/eventmaphdr/internal/pandda"
	"github.com/xchem/eventmaphdr/internal/telemetry"
)

// Update performs one complete cycle: discover event maps, filter
// against the journal, rewrite headers through the worker pool, and
// record outcomes. jnl may be nil (journalling disabled).
func Update(ctx context.Context, cfg config.AppConfig, jnl *journal.Journal) (*Status, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	target, err := targetSpacegroup(cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = xlog.ContextWithRunID(ctx, runID)

	ctx, span := telemetry.Tracer("eventmaphdr/jobs").Start(ctx, "jobs.update")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	logger := xlog.WithComponentFromContext(ctx, "jobs")
	logger.Info().
		Str("event", "update.start").
		Str(xlog.FieldRootDir, cfg.PanDDADir).
		Bool("dry_run", cfg.DryRun).
		Msg("starting event map update")

	start := time.Now()

	maps, err := pandda.DiscoverEventMaps(ctx, cfg.PanDDADir, cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("discover event maps: %w", err)
	}
	datasets, err := pandda.CountDatasets(cfg.PanDDADir)
	if err != nil {
		return nil, fmt.Errorf("count datasets: %w", err)
	}
	logger.Info().
		Str("event", "update.discovered").
		Int("datasets", datasets).
		Int("event_maps", len(maps)).
		Msg("event maps discovered")

	status := &Status{
		RunID:    runID,
		Datasets: datasets,
		Scanned:  len(maps),
		DryRun:   cfg.DryRun,
	}

	// Journal filter: untouched maps that were already rewritten are
	// skipped without reading a single voxel.
	pending := make([]pandda.EventMap, 0, len(maps))
	for _, em := range maps {
		info, statErr := os.Stat(em.Path)
		if statErr != nil {
			logger.Warn().Err(statErr).Str(xlog.FieldPath, em.Path).
				Str("event", "update.stat_failed").Msg("event map vanished during scan")
			status.Failed++
			metrics.IncMapProcessed(OutcomeFailed)
			continue
		}
		if !jnl.NeedsUpdate(ctx, em.Path, info) {
			status.Skipped++
			metrics.IncMapProcessed(OutcomeSkipped)
			metrics.IncJournalSkip()
			continue
		}
		pending = append(pending, em)
	}

	results := processAll(ctx, cfg, target, pending)

	for _, res := range results {
		metrics.IncMapProcessed(res.Outcome)
		switch res.Outcome {
		case OutcomeUpdated:
			status.Updated++
			recordResult(ctx, jnl, res)
		case OutcomeSkipped:
			status.Skipped++
			// Already conforming: journal it so the next run skips the read.
			recordResult(ctx, jnl, res)
		case OutcomeDryRun:
			status.Updated++
		case OutcomeFailed:
			status.Failed++
			recordResult(ctx, jnl, res)
		}
	}

	status.LastRun = time.Now()
	status.Duration = status.LastRun.Sub(start)
	metrics.RecordScan(datasets, len(maps), status.Duration.Seconds())

	logger.Info().
		Str("event", "update.complete").
		Int("scanned", status.Scanned).
		Int("updated", status.Updated).
		Int("skipped", status.Skipped).
		Int("failed", status.Failed).
		Dur("duration", status.Duration).
		Msg("event map update completed")

	return status, nil
}

// recordResult journals an outcome. Journal errors are logged and
// counted, never fatal: the journal is an optimization, not a ledger
// the correctness of the rewrite depends on.
func recordResult(ctx context.Context, jnl *journal.Journal, res Result) {
	if jnl == nil {
		return
	}
	info, err := os.Stat(res.Map.Path)
	if err != nil {
		return
	}
	outcome := "updated"
	spacegroup := res.NewSpacegroup
	if res.Outcome == OutcomeFailed {
		outcome = "failed"
		spacegroup = res.OldSpacegroup
	}
	entry := journal.Entry{
		Path:       res.Map.Path,
		Size:       info.Size(),
		MTime:      info.ModTime(),
		Spacegroup: spacegroup,
		Outcome:    outcome,
	}
	if err := jnl.Record(ctx, entry); err != nil {
		metrics.IncUpdateFailure("journal")
		logger := xlog.WithComponentFromContext(ctx, "jobs")
		logger.Warn().
			Err(err).
			Str(xlog.FieldPath, res.Map.Path).
			Str("event", "update.journal_failed").
			Msg("failed to journal map outcome")
	}
}

// processAll fans pending maps out to cfg.Workers rewrite workers and
// collects every result. Each target is re-confined to the PanDDA root
// right before the rewrite; discovery already confines, but the tree
// can change between scan and write.
func processAll(ctx context.Context, cfg config.AppConfig, target int32, pending []pandda.EventMap) []Result {
	if len(pending) == 0 {
		return nil
	}

	tasks := make(chan pandda.EventMap)
	out := make(chan Result, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for em := range tasks {
				out <- processOne(ctx, cfg, target, em)
			}
		}()
	}

	for _, em := range pending {
		select {
		case <-ctx.Done():
			// Drain: stop handing out work, report the rest as failed.
			close(tasks)
			wg.Wait()
			close(out)
			results := collect(out)
			for _, em := range pending[len(results):] {
				results = append(results, Result{
					Map:     em,
					Outcome: OutcomeFailed,
					Error:   ctx.Err().Error(),
				})
			}
			return results
		case tasks <- em:
		}
	}
	close(tasks)
	wg.Wait()
	close(out)
	return collect(out)
}

func collect(out <-chan Result) []Result {
	var results []Result
	for res := range out {
		results = append(results, res)
	}
	return results
}

// processOne guards a single rewrite with path confinement and a
// dataset-scoped logging context.
func processOne(ctx context.Context, cfg config.AppConfig, target int32, em pandda.EventMap) Result {
	ctx = xlog.ContextWithDataset(ctx, em.Dataset)

	if _, err := fsutil.ConfineAbsPath(cfg.PanDDADir, em.Path); err != nil {
		metrics.IncUpdateFailure("read")
		return Result{
			Map:     em,
			Outcome: OutcomeFailed,
			Error:   fmt.Sprintf("target escapes PanDDA root: %v", err),
		}
	}
	if err := fsutil.IsRegularFile(em.Path); err != nil {
		metrics.IncUpdateFailure("read")
		return Result{Map: em, Outcome: OutcomeFailed, Error: err.Error()}
	}

	return rewriteOne(ctx, em, target, cfg.DryRun)
}
