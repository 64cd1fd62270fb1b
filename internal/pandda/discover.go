// SPDX-License-Identifier: MIT

package pandda

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xchem/eventmaphdr/internal/fsutil"
	xlog "github.com/xchem/eventmaphdr/internal/log"
)

// discoverConcurrency bounds the number of dataset directories globbed
// at once. PanDDA runs can hold thousands of datasets on NFS.
const discoverConcurrency = 16

// DiscoverEventMaps walks <root>/processed_datasets and returns every
// event map matching pattern, sorted by dataset then path. Every
// returned path is confined to the root: a dataset directory that is a
// symlink out of the tree is skipped with a warning, not followed.
func DiscoverEventMaps(ctx context.Context, root, pattern string) ([]EventMap, error) {
	logger := xlog.WithComponentFromContext(ctx, "pandda")

	if pattern == "" {
		pattern = DefaultEventMapPattern
	}
	if _, err := filepath.Match(pattern, "sample.ccp4"); err != nil {
		return nil, fmt.Errorf("invalid event map pattern %q: %w", pattern, err)
	}

	processedDir, err := fsutil.ConfineRelPath(root, ProcessedDatasetsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ProcessedDatasetsDir, err)
	}

	entries, err := os.ReadDir(processedDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", processedDir, err)
	}

	var (
		mu   sync.Mutex
		maps []EventMap
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(discoverConcurrency)

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dataset := entry.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			datasetDir, err := fsutil.ConfineRelPath(root, filepath.Join(ProcessedDatasetsDir, dataset))
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event", "discover.dataset_skipped").
					Str(xlog.FieldDataset, dataset).
					Msg("dataset directory escapes the PanDDA root, skipping")
				return nil
			}

			info, err := os.Stat(datasetDir)
			if err != nil || !info.IsDir() {
				return nil
			}

			found, err := globEventMaps(datasetDir, pattern)
			if err != nil {
				return fmt.Errorf("glob dataset %q: %w", dataset, err)
			}

			mu.Lock()
			for _, path := range found {
				maps = append(maps, EventMap{Dataset: dataset, Path: path})
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(maps, func(i, j int) bool {
		if maps[i].Dataset != maps[j].Dataset {
			return maps[i].Dataset < maps[j].Dataset
		}
		return maps[i].Path < maps[j].Path
	})

	logger.Debug().
		Str("event", "discover.complete").
		Int("datasets", len(entries)).
		Int("event_maps", len(maps)).
		Msg("event map discovery complete")

	return maps, nil
}

// globEventMaps returns regular files in dir matching pattern.
func globEventMaps(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if err := fsutil.IsRegularFile(match); err != nil {
			continue
		}
		out = append(out, match)
	}
	return out, nil
}

// CountDatasets reports how many dataset directories exist under root.
func CountDatasets(root string) (int, error) {
	processedDir, err := fsutil.ConfineRelPath(root, ProcessedDatasetsDir)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(processedDir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || !entry.IsDir() {
			continue
		}
		n++
	}
	return n, nil
}
