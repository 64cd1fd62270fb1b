// SPDX-License-Identifier: MIT

package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func statFile(t *testing.T, path string) os.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

func TestNeedsUpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	mapPath := filepath.Join(t.TempDir(), "a-event_1.ccp4")
	require.NoError(t, os.WriteFile(mapPath, []byte("map-v1"), 0o640))
	info := statFile(t, mapPath)

	// Unknown path: must be updated.
	require.True(t, j.NeedsUpdate(ctx, mapPath, info))

	require.NoError(t, j.Record(ctx, Entry{
		Path:       mapPath,
		Size:       info.Size(),
		MTime:      info.ModTime(),
		Spacegroup: 1,
		Outcome:    "updated",
	}))

	// Same size and mtime: up to date.
	require.False(t, j.NeedsUpdate(ctx, mapPath, statFile(t, mapPath)))

	// Content change invalidates the entry.
	require.NoError(t, os.WriteFile(mapPath, []byte("map-v2-longer"), 0o640))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(mapPath, future, future))
	require.True(t, j.NeedsUpdate(ctx, mapPath, statFile(t, mapPath)))
}

func TestFailedOutcomeAlwaysRetried(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	mapPath := filepath.Join(t.TempDir(), "b-event_1.ccp4")
	require.NoError(t, os.WriteFile(mapPath, []byte("corrupt"), 0o640))
	info := statFile(t, mapPath)

	require.NoError(t, j.Record(ctx, Entry{
		Path:    mapPath,
		Size:    info.Size(),
		MTime:   info.ModTime(),
		Outcome: "failed",
	}))
	require.True(t, j.NeedsUpdate(ctx, mapPath, info))
}

func TestRecordUpsert(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	e := Entry{Path: "/maps/x.ccp4", Size: 10, MTime: time.Unix(1000, 0), Spacegroup: 19, Outcome: "failed"}
	require.NoError(t, j.Record(ctx, e))
	e.Outcome = "updated"
	e.Spacegroup = 1
	require.NoError(t, j.Record(ctx, e))

	n, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	hist, err := j.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "updated", hist[0].Outcome)
	require.Equal(t, int32(1), hist[0].Spacegroup)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, Entry{
			Path:      filepath.Join("/maps", string(rune('a'+i))+".ccp4"),
			Outcome:   "updated",
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	hist, err := j.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, "/maps/e.ccp4", hist[0].Path)
	require.Equal(t, "/maps/d.ccp4", hist[1].Path)
}

func TestNilJournalIsSafe(t *testing.T) {
	ctx := context.Background()
	var j *Journal

	mapPath := filepath.Join(t.TempDir(), "c.ccp4")
	require.NoError(t, os.WriteFile(mapPath, []byte("x"), 0o640))

	require.True(t, j.NeedsUpdate(ctx, mapPath, statFile(t, mapPath)))
	require.NoError(t, j.Record(ctx, Entry{Path: mapPath}))
	require.NoError(t, j.Close())

	n, err := j.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestVerifyIntegrity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Entry{Path: "/m.ccp4", Outcome: "updated"}))
	require.NoError(t, j.Close())

	problems, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	require.Nil(t, problems)

	problems, err = VerifyIntegrity(path, "full")
	require.NoError(t, err)
	require.Nil(t, problems)
}
