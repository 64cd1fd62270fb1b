// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus metrics for the update pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mapsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventmaphdr_maps_processed_total",
		Help: "Event maps processed by outcome",
	}, []string{"outcome"}) // outcome=updated|skipped|failed|dry_run

	updateFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventmaphdr_update_failures_total",
		Help: "Per-map update failures by stage",
	}, []string{"stage"}) // stage=read|rewrite|write|journal

	datasetsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventmaphdr_datasets_discovered",
		Help: "Dataset directories found in the last scan",
	})

	eventMapsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventmaphdr_event_maps_discovered",
		Help: "Event map files found in the last scan",
	})

	scanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventmaphdr_scan_duration_seconds",
		Help:    "Wall time of a full scan-and-update run",
		Buckets: prometheus.DefBuckets,
	})

	journalSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventmaphdr_journal_skips_total",
		Help: "Maps skipped because the journal marked them up to date",
	})

	watcherRescansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventmaphdr_watcher_rescans_total",
		Help: "Rescans requested by the directory watcher by outcome",
	}, []string{"outcome"}) // outcome=ok|error|throttled
)

func IncMapProcessed(outcome string)  { mapsProcessedTotal.WithLabelValues(outcome).Inc() }
func IncUpdateFailure(stage string)   { updateFailuresTotal.WithLabelValues(stage).Inc() }
func IncJournalSkip()                 { journalSkipsTotal.Inc() }
func IncWatcherRescan(outcome string) { watcherRescansTotal.WithLabelValues(outcome).Inc() }

func RecordScan(datasets, eventMaps int, durationSeconds float64) {
	datasetsDiscovered.Set(float64(datasets))
	eventMapsDiscovered.Set(float64(eventMaps))
	scanDurationSeconds.Observe(durationSeconds)
}
