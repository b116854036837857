package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveRuleSet stores an encoded rule configuration under name for the
// workspace rooted at root, which must already exist.
func (d *Database) SaveRuleSet(ctx context.Context, root, name string, config []byte) (err error) {
	start := time.Now()
	defer func() { recordQuery("save_rule_set", start, err) }()

	ws, err := d.Workspace(ctx, root)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO rule_sets (workspace_id, name, config, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(workspace_id, name) DO UPDATE SET
			config = excluded.config,
			updated_at = strftime('%s', 'now')
	`, ws.ID, name, string(config))
	if err != nil {
		return fmt.Errorf("save rule set %q: %w", name, err)
	}
	return nil
}

// LoadRuleSet returns the rule configuration saved under name.
func (d *Database) LoadRuleSet(ctx context.Context, root, name string) (config []byte, err error) {
	start := time.Now()
	defer func() { recordQuery("load_rule_set", start, err) }()

	ws, err := d.Workspace(ctx, root)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var data string
	err = d.db.QueryRowContext(ctx,
		"SELECT config FROM rule_sets WHERE workspace_id = ? AND name = ?", ws.ID, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule set %q: %w", name, ErrCacheMiss)
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// RuleSets lists the rule sets saved for root, by name.
func (d *Database) RuleSets(ctx context.Context, root string) ([]RuleSetInfo, error) {
	ws, err := d.Workspace(ctx, root)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx,
		"SELECT name, updated_at FROM rule_sets WHERE workspace_id = ? ORDER BY name", ws.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleSetInfo
	for rows.Next() {
		var info RuleSetInfo
		var updated int64
		if err := rows.Scan(&info.Name, &updated); err != nil {
			return nil, err
		}
		info.UpdatedAt = time.Unix(updated, 0)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteRuleSet removes a saved rule set. Deleting a missing one is not an
// error.
func (d *Database) DeleteRuleSet(ctx context.Context, root, name string) error {
	ws, err := d.Workspace(ctx, root)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, "DELETE FROM rule_sets WHERE workspace_id = ? AND name = ?", ws.ID, name)
	return err
}
