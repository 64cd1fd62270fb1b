// SPDX-License-Identifier: MIT

// Package jobs runs the scan-and-update cycle over a PanDDA tree.
package jobs

import (
	"time"

	"github.com/xchem/eventmaphdr/internal/pandda"
)

// Outcomes of processing a single event map.
const (
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeDryRun  = "dry_run"
)

// Result is the outcome of processing one event map.
type Result struct {
	Map           pandda.EventMap `json:"map"`
	Outcome       string          `json:"outcome"`
	OldSpacegroup int32           `json:"old_spacegroup,omitempty"`
	NewSpacegroup int32           `json:"new_spacegroup,omitempty"`
	OldMode       int32           `json:"old_mode,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Status summarizes the last update run.
type Status struct {
	RunID    string        `json:"run_id"`
	LastRun  time.Time     `json:"last_run"`
	Duration time.Duration `json:"duration"`
	Datasets int           `json:"datasets"`
	Scanned  int           `json:"scanned"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	DryRun   bool          `json:"dry_run"`
	Error    string        `json:"error,omitempty"`
}
