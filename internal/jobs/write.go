// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/xchem/eventmaphdr/internal/ccp4"
	xlog "github.com/xchem/eventmaphdr/internal/log"
)

// writeMapAtomic replaces the map at path with full durability
// guarantees: renameio writes to a temp file in the same directory,
// fsyncs, and renames. A crash mid-write leaves the original map
// intact.
func writeMapAtomic(ctx context.Context, path string, m *ccp4.Map) error {
	logger := xlog.FromContext(ctx)

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending map file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if not committed.
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending map file")
		}
	}()

	if err := ccp4.Encode(pendingFile, m); err != nil {
		return fmt.Errorf("encode map data: %w", err)
	}

	// CloseAtomicallyReplace: fsync + rename.
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace map file: %w", err)
	}

	return nil
}
