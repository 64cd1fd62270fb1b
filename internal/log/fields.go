// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID   = "run_id"
	FieldDataset = "dataset"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Map fields
	FieldSpacegroup = "spacegroup"
	FieldMode       = "mode"

	// Path fields
	FieldPath    = "path"
	FieldRootDir = "root_dir"
)
