// SPDX-License-Identifier: MIT

// Package journal records which event maps have already been rewritten,
// so repeated runs over the same PanDDA tree skip untouched files. The
// journal is advisory: losing it only costs redundant rewrites.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_maps (
	path        TEXT PRIMARY KEY,
	size        INTEGER NOT NULL,
	mtime_unix  INTEGER NOT NULL,
	spacegroup  INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_maps_updated_at ON event_maps(updated_at);
`

// Entry is one journalled rewrite.
type Entry struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	MTime      time.Time `json:"mtime"`
	Spacegroup int32     `json:"spacegroup"`
	Outcome    string    `json:"outcome"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Journal is a sqlite-backed processing journal. A nil *Journal is
// valid and behaves as "journalling disabled": every map needs an
// update and nothing is recorded.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// NeedsUpdate reports whether the map at path must be rewritten. A map
// is up to date only when a journalled "updated" entry matches its
// current size and mtime exactly.
func (j *Journal) NeedsUpdate(ctx context.Context, path string, info os.FileInfo) bool {
	if j == nil || j.db == nil {
		return true
	}
	var (
		size    int64
		mtime   int64
		outcome string
	)
	row := j.db.QueryRowContext(ctx,
		`SELECT size, mtime_unix, outcome FROM event_maps WHERE path = ?`, path)
	if err := row.Scan(&size, &mtime, &outcome); err != nil {
		// No row (or a broken journal): rewrite to be safe.
		return true
	}
	return outcome != "updated" ||
		size != info.Size() ||
		mtime != info.ModTime().Unix()
}

// Record upserts an entry for a processed map.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return nil
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO event_maps (path, size, mtime_unix, spacegroup, outcome, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	size = excluded.size,
	mtime_unix = excluded.mtime_unix,
	spacegroup = excluded.spacegroup,
	outcome = excluded.outcome,
	updated_at = excluded.updated_at`,
		e.Path, e.Size, e.MTime.Unix(), e.Spacegroup, e.Outcome, e.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Count returns the number of journalled maps.
func (j *Journal) Count(ctx context.Context) (int, error) {
	if j == nil || j.db == nil {
		return 0, nil
	}
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_maps`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// History returns the most recently journalled entries, newest first.
func (j *Journal) History(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT path, size, mtime_unix, spacegroup, outcome, updated_at
FROM event_maps ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			mtime int64
			ts    string
		)
		if err := rows.Scan(&e.Path, &e.Size, &mtime, &e.Spacegroup, &e.Outcome, &ts); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.MTime = time.Unix(mtime, 0).UTC()
		if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
			e.UpdatedAt = parsed
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return out, nil
}
