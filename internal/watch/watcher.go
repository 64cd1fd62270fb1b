// SPDX-License-Identifier: MIT

// Package watch rescans a PanDDA tree when event maps change on disk.
// Filesystem events are debounced, and rescans are rate limited so a
// burst of PanDDA output cannot trigger a rewrite storm.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/xchem/eventmaphdr/internal/config"
	"github.com/xchem/eventmaphdr/internal/log"
	"github.com/xchem/eventmaphdr/internal/metrics"
	"github.com/xchem/eventmaphdr/internal/pandda"
)

// RescanFunc runs one scan cycle over the tree.
type RescanFunc func(ctx context.Context) error

// Watcher triggers rescans on filesystem changes and on a fixed
// interval as a safety net for events the kernel drops.
type Watcher struct {
	root     string
	debounce time.Duration
	interval time.Duration
	limiter  *rate.Limiter
	rescan   RescanFunc
}

// New builds a Watcher from the application config.
func New(cfg config.AppConfig, rescan RescanFunc) *Watcher {
	return &Watcher{
		root:     cfg.PanDDADir,
		debounce: cfg.WatchDebounce,
		interval: cfg.RescanInterval,
		// At most one rescan per debounce window on average, with a
		// small burst for startup.
		limiter: rate.NewLimiter(rate.Every(cfg.WatchDebounce), 2),
		rescan:  rescan,
	}
}

// Run watches the tree until ctx is cancelled. It returns nil on
// cancellation and an error only if the watcher cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "watch")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = fsw.Close()
	}()

	pd := filepath.Join(w.root, pandda.ProcessedDatasetsDir)
	if err := fsw.Add(pd); err != nil {
		return fmt.Errorf("watch %s: %w", pd, err)
	}
	if err := w.addDatasetDirs(fsw, pd); err != nil {
		return err
	}

	logger.Info().
		Str("event", "watch.started").
		Str(log.FieldRootDir, w.root).
		Dur("debounce", w.debounce).
		Dur("interval", w.interval).
		Msg("watching for event map changes")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "watch.stopped").Msg("watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New dataset directories need their own watch.
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if addErr := fsw.Add(event.Name); addErr != nil {
						logger.Warn().Err(addErr).Str(log.FieldPath, event.Name).
							Str("event", "watch.add_failed").Msg("failed to watch new dataset directory")
					}
				}
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				logger.Debug().
					Str("event", "watch.fs_event").
					Str("op", event.Op.String()).
					Str(log.FieldPath, event.Name).
					Msg("filesystem change observed")
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.debounce)
			}

		case <-debounce.C:
			w.triggerRescan(ctx, "fsnotify")

		case <-ticker.C:
			w.triggerRescan(ctx, "interval")

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(werr).Str("event", "watch.error").Msg("watcher error")
		}
	}
}

func (w *Watcher) addDatasetDirs(fsw *fsnotify.Watcher, pd string) error {
	entries, err := os.ReadDir(pd)
	if err != nil {
		return fmt.Errorf("read %s: %w", pd, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := fsw.Add(filepath.Join(pd, entry.Name())); err != nil {
			return fmt.Errorf("watch dataset %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (w *Watcher) triggerRescan(ctx context.Context, reason string) {
	logger := log.WithComponentFromContext(ctx, "watch")

	if !w.limiter.Allow() {
		metrics.IncWatcherRescan("throttled")
		logger.Warn().Str("event", "watch.throttled").Str("reason", reason).
			Msg("rescan throttled")
		return
	}

	logger.Info().Str("event", "watch.rescan").Str("reason", reason).Msg("triggering rescan")
	if err := w.rescan(ctx); err != nil {
		metrics.IncWatcherRescan("error")
		logger.Error().Err(err).Str("event", "watch.rescan_failed").Msg("rescan failed")
		return
	}
	metrics.IncWatcherRescan("ok")
}
