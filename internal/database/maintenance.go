package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/metrics"
)

// Stats counts the rows of every table and the bytes held in thumbnails.
func (d *Database) Stats(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM workspaces),
			(SELECT COUNT(*) FROM analysis_results),
			(SELECT COUNT(*) FROM rule_sets),
			(SELECT COALESCE(SUM(length(thumbnail)), 0) FROM images)
	`).Scan(&stats.Images, &stats.Workspaces, &stats.AnalysisResults, &stats.RuleSets, &stats.ThumbnailBytes)
	return stats, err
}

// GetStats implements metrics.StatsProvider. Errors are logged and reported
// as zero counts.
func (d *Database) GetStats() metrics.Stats {
	stats, err := d.Stats(context.Background())
	if err != nil {
		logging.Warn("Failed to read cache statistics: %v", err)
	}
	return stats
}

// Prune deletes cached thumbnails and analysis results whose path no longer
// satisfies exists. It returns the number of thumbnail rows removed.
func (d *Database) Prune(ctx context.Context, exists func(path string) bool) (removed int64, err error) {
	start := time.Now()
	defer func() { recordQuery("prune", start, err) }()

	paths, err := d.CachedPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cached paths: %w", err)
	}

	var stale []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !exists(p) {
			stale = append(stale, p)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := d.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}
	removed, err = deleteStale(ctx, tx, stale)
	if err = d.EndBatch(tx, err); err != nil {
		return 0, err
	}

	logging.Info("Pruned %d stale cache entries", removed)
	return removed, nil
}

func deleteStale(ctx context.Context, tx *sql.Tx, paths []string) (int64, error) {
	var removed int64
	for _, p := range paths {
		res, err := tx.ExecContext(ctx, "DELETE FROM images WHERE path = ?", p)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", p, err)
		}
		n, _ := res.RowsAffected()
		removed += n

		if _, err := tx.ExecContext(ctx, "DELETE FROM analysis_results WHERE path = ?", p); err != nil {
			return 0, fmt.Errorf("delete analysis for %s: %w", p, err)
		}
	}
	return removed, nil
}
