package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pic-analyzer/internal/mediatypes"
)

// Lookup returns the fingerprint and thumbnail stored for path, or
// ErrCacheMiss when there is no row.
func (d *Database) Lookup(ctx context.Context, path string) (fp mediatypes.Fingerprint, thumb []byte, err error) {
	start := time.Now()
	defer func() { recordQuery("lookup", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	err = d.db.QueryRowContext(ctx,
		"SELECT size, mod_time, thumbnail FROM images WHERE path = ?", path,
	).Scan(&fp.Size, &fp.ModTime, &thumb)
	if errors.Is(err, sql.ErrNoRows) {
		return mediatypes.Fingerprint{}, nil, ErrCacheMiss
	}
	if err != nil {
		return mediatypes.Fingerprint{}, nil, fmt.Errorf("lookup %s: %w", path, err)
	}
	return fp, thumb, nil
}

// Upsert stores the thumbnail and fingerprint for path, replacing any
// previous row. The row is linked to the deepest workspace containing path.
func (d *Database) Upsert(ctx context.Context, path string, fp mediatypes.Fingerprint, thumb []byte) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO images (path, size, mod_time, thumbnail, workspace_id, updated_at)
	VALUES (?, ?, ?, ?, (
		SELECT id FROM workspaces
		WHERE ? = path OR substr(?, 1, length(path) + 1) = path || '/'
		ORDER BY length(path) DESC LIMIT 1
	), strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		size = excluded.size,
		mod_time = excluded.mod_time,
		thumbnail = excluded.thumbnail,
		workspace_id = COALESCE(excluded.workspace_id, images.workspace_id),
		updated_at = strftime('%s', 'now')
	`, path, fp.Size, fp.ModTime, thumb, path, path)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}

// Entry returns the full cache row for path.
func (d *Database) Entry(ctx context.Context, path string) (*CacheEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var e CacheEntry
	var workspaceID sql.NullInt64
	var updated int64
	err := d.db.QueryRowContext(ctx, `
		SELECT path, size, mod_time, thumbnail, workspace_id, updated_at
		FROM images WHERE path = ?
	`, path).Scan(&e.Path, &e.Fingerprint.Size, &e.Fingerprint.ModTime, &e.Thumbnail, &workspaceID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	e.WorkspaceID = workspaceID.Int64
	e.UpdatedAt = time.Unix(updated, 0)
	return &e, nil
}

// CachedPaths returns every path in the thumbnail cache, sorted.
func (d *Database) CachedPaths(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT path FROM images ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
