// SPDX-License-Identifier: MIT

package jobs

import (
	"fmt"
	"path/filepath"

	"github.com/xchem/eventmaphdr/internal/ccp4"
	"github.com/xchem/eventmaphdr/internal/config"
)

// validateConfig rejects configurations no run could succeed with.
// Startup validation covers the same ground, but Update is also
// reachable from the API with a possibly reloaded config.
func validateConfig(cfg config.AppConfig) error {
	if cfg.PanDDADir == "" {
		return fmt.Errorf("PanDDA directory is empty")
	}
	if !filepath.IsAbs(cfg.PanDDADir) {
		return fmt.Errorf("PanDDA directory must be absolute: %s", cfg.PanDDADir)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if _, err := filepath.Match(cfg.Pattern, "sample.ccp4"); err != nil {
		return fmt.Errorf("invalid event map pattern %q: %w", cfg.Pattern, err)
	}
	return nil
}

// targetSpacegroup resolves the configured spacegroup symbol to its
// number. An empty symbol means the default, P 1.
func targetSpacegroup(cfg config.AppConfig) (int32, error) {
	if cfg.Spacegroup == "" {
		return ccp4.SpacegroupP1, nil
	}
	num, err := ccp4.FindSpacegroupByName(cfg.Spacegroup)
	if err != nil {
		return 0, fmt.Errorf("target spacegroup: %w", err)
	}
	return num, nil
}
