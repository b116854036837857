package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// EnsureWorkspace records root as a workspace, marks it as scanned now and
// returns it. root should be absolute and clean.
func (d *Database) EnsureWorkspace(ctx context.Context, root string) (ws *Workspace, err error) {
	start := time.Now()
	defer func() { recordQuery("workspace", start, err) }()

	root = filepath.Clean(root)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO workspaces (name, path, last_scanned_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(path) DO UPDATE SET last_scanned_at = strftime('%s', 'now')
	`, filepath.Base(root), root)
	if err != nil {
		return nil, fmt.Errorf("record workspace %s: %w", root, err)
	}

	return d.workspaceLocked(ctx, root)
}

// Workspace returns the workspace recorded for root.
func (d *Database) Workspace(ctx context.Context, root string) (*Workspace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.workspaceLocked(ctx, filepath.Clean(root))
}

func (d *Database) workspaceLocked(ctx context.Context, root string) (*Workspace, error) {
	var ws Workspace
	var created, scanned int64
	err := d.db.QueryRowContext(ctx,
		"SELECT id, name, path, created_at, last_scanned_at FROM workspaces WHERE path = ?", root,
	).Scan(&ws.ID, &ws.Name, &ws.Path, &created, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", root, ErrCacheMiss)
	}
	if err != nil {
		return nil, err
	}
	ws.CreatedAt = time.Unix(created, 0)
	ws.LastScannedAt = time.Unix(scanned, 0)
	return &ws, nil
}

// Workspaces lists every workspace ordered by path.
func (d *Database) Workspaces(ctx context.Context) ([]Workspace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, path, created_at, last_scanned_at FROM workspaces ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var ws Workspace
		var created, scanned int64
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Path, &created, &scanned); err != nil {
			return nil, err
		}
		ws.CreatedAt = time.Unix(created, 0)
		ws.LastScannedAt = time.Unix(scanned, 0)
		out = append(out, ws)
	}
	return out, rows.Err()
}
