// SPDX-License-Identifier: MIT

// Package pandda locates event maps inside a PanDDA output tree.
//
// A PanDDA run lays its results out as
//
//	<root>/processed_datasets/<dataset>/<crystal>-event_<n>_...map.ccp4
//
// with one directory per dataset. Only the discovery conventions live
// here; rewriting is the jobs package's business.
package pandda

// ProcessedDatasetsDir is the subdirectory of a PanDDA root that holds
// one directory per processed dataset.
const ProcessedDatasetsDir = "processed_datasets"

// DefaultEventMapPattern matches the event maps PanDDA writes into each
// dataset directory.
const DefaultEventMapPattern = "*event*.ccp4"

// EventMap is one discovered event map file.
type EventMap struct {
	// Dataset is the name of the dataset directory the map belongs to.
	Dataset string `json:"dataset"`
	// Path is the resolved absolute path of the map file.
	Path string `json:"path"`
}
