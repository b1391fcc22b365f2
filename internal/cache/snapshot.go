package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PackSnapshot holds the content hashes of a pack's files at one point in time.
type PackSnapshot struct {
	PackName   string
	Hashes     map[string]string // file path -> content hash
	RecordedAt time.Time
}

// LoadSnapshot returns the last snapshot recorded for a pack, or nil if the
// pack has never been snapshotted.
func (c *Cache) LoadSnapshot(ctx context.Context, pack string) (*PackSnapshot, error) {
	var recordedAt string
	err := c.db.QueryRowContext(ctx,
		"SELECT recorded_at FROM snapshot_meta WHERE pack_name = ?", pack).Scan(&recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", pack, err)
	}

	snap := &PackSnapshot{PackName: pack, Hashes: make(map[string]string)}
	snap.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)

	rows, err := c.db.QueryContext(ctx,
		"SELECT file_path, content_hash FROM pack_snapshots WHERE pack_name = ?", pack)
	if err != nil {
		return nil, fmt.Errorf("query snapshot files %s: %w", pack, err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		snap.Hashes[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return snap, nil
}

// SaveSnapshot replaces a pack's snapshot in a single transaction.
func (c *Cache) SaveSnapshot(ctx context.Context, snap *PackSnapshot) error {
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pack_snapshots WHERE pack_name = ?", snap.PackName); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", snap.PackName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pack_snapshots (pack_name, file_path, content_hash)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for path, hash := range snap.Hashes {
		if _, err := stmt.ExecContext(ctx, snap.PackName, path, hash); err != nil {
			return fmt.Errorf("save snapshot file %s: %w", path, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshot_meta (pack_name, recorded_at)
		VALUES (?, ?)`,
		snap.PackName, recordedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save snapshot meta %s: %w", snap.PackName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteSnapshot forgets a pack's snapshot.
func (c *Cache) DeleteSnapshot(ctx context.Context, pack string) error {
	for _, q := range []string{
		"DELETE FROM pack_snapshots WHERE pack_name = ?",
		"DELETE FROM snapshot_meta WHERE pack_name = ?",
	} {
		if _, err := c.db.ExecContext(ctx, q, pack); err != nil {
			return fmt.Errorf("delete snapshot %s: %w", pack, err)
		}
	}
	return nil
}
