package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pic-analyzer/internal/mediatypes"
)

// StoreAnalysis saves the output of plugin's run() for path, computed
// against fingerprint fp.
func (d *Database) StoreAnalysis(ctx context.Context, path, plugin string, fp mediatypes.Fingerprint, result mediatypes.Metrics) (err error) {
	start := time.Now()
	defer func() { recordQuery("store_analysis", start, err) }()

	data, err := encodeMetrics(result)
	if err != nil {
		return fmt.Errorf("encode %s result for %s: %w", plugin, path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO analysis_results (path, plugin, size, mod_time, result, updated_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(path, plugin) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			result = excluded.result,
			updated_at = strftime('%s', 'now')
	`, path, plugin, fp.Size, fp.ModTime, data)
	return err
}

// LoadAnalysis returns the stored result of plugin for path. A missing row
// or one computed against a different fingerprint is ErrCacheMiss.
func (d *Database) LoadAnalysis(ctx context.Context, path, plugin string, fp mediatypes.Fingerprint) (result mediatypes.Metrics, err error) {
	start := time.Now()
	defer func() { recordQuery("load_analysis", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var stored mediatypes.Fingerprint
	var data string
	err = d.db.QueryRowContext(ctx,
		"SELECT size, mod_time, result FROM analysis_results WHERE path = ? AND plugin = ?", path, plugin,
	).Scan(&stored.Size, &stored.ModTime, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if !stored.Equal(fp) {
		return nil, ErrCacheMiss
	}
	return decodeMetrics(data)
}

func encodeMetrics(m mediatypes.Metrics) (string, error) {
	raw := make(map[string]any, len(m))
	for k, v := range m {
		raw[k] = v.Interface()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMetrics(data string) (mediatypes.Metrics, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	out := make(mediatypes.Metrics, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case float64:
			out[k] = mediatypes.Number(x)
		case string:
			out[k] = mediatypes.Text(x)
		case bool:
			if x {
				out[k] = mediatypes.Number(1)
			} else {
				out[k] = mediatypes.Number(0)
			}
		}
	}
	return out, nil
}
