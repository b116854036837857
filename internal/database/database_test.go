package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/metrics"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"images", "workspaces", "analysis_results", "rule_sets"} {
		var n int
		err := db.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	var hasWorkspace bool
	require.NoError(t, db.db.QueryRow(
		"SELECT COUNT(*) > 0 FROM pragma_table_info('images') WHERE name='workspace_id'",
	).Scan(&hasWorkspace))
	assert.True(t, hasWorkspace)
}

func TestNewReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	db, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Upsert(ctx, "/a.jpg", mediatypes.Fingerprint{Size: 1, ModTime: 2}, []byte("x")))
	require.NoError(t, db.Close())

	db, err = New(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	fp, thumb, err := db.Lookup(ctx, "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, mediatypes.Fingerprint{Size: 1, ModTime: 2}, fp)
	assert.Equal(t, []byte("x"), thumb)
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "nope", "cache.db"))
	assert.Error(t, err)
}

func TestLookupMiss(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.Lookup(context.Background(), "/missing.jpg")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheCallsUseCallerContext(t *testing.T) {
	db := openTestDB(t)
	fp := mediatypes.Fingerprint{Size: 1, ModTime: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := db.Lookup(ctx, "/a.jpg")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, db.Upsert(ctx, "/a.jpg", fp, []byte("t")), context.Canceled)
	assert.ErrorIs(t, db.StoreAnalysis(ctx, "/a.jpg", "p", fp, mediatypes.Metrics{}), context.Canceled)

	long, stop := context.WithTimeout(context.Background(), 10*defaultTimeout)
	defer stop()
	require.NoError(t, db.Upsert(long, "/a.jpg", fp, []byte("t")))
	_, thumb, err := db.Lookup(long, "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("t"), thumb)
}

func TestUpsertReplacesRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Upsert(ctx, "/a.jpg", mediatypes.Fingerprint{Size: 10, ModTime: 100}, []byte("old")))
	require.NoError(t, db.Upsert(ctx, "/a.jpg", mediatypes.Fingerprint{Size: 11, ModTime: 200}, []byte("new")))

	fp, thumb, err := db.Lookup(ctx, "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(11), fp.Size)
	assert.Equal(t, int64(200), fp.ModTime)
	assert.Equal(t, []byte("new"), thumb)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, int64(3), stats.ThumbnailBytes)
}

func TestUpsertLinksDeepestWorkspace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	outer, err := db.EnsureWorkspace(ctx, "/photos")
	require.NoError(t, err)
	inner, err := db.EnsureWorkspace(ctx, "/photos/2024/")
	require.NoError(t, err)
	assert.Equal(t, "/photos/2024", inner.Path)
	assert.Equal(t, "2024", inner.Name)

	fp := mediatypes.Fingerprint{Size: 1, ModTime: 1}
	require.NoError(t, db.Upsert(ctx, "/photos/2024/a.jpg", fp, nil))
	require.NoError(t, db.Upsert(ctx, "/photos/b.jpg", fp, nil))
	require.NoError(t, db.Upsert(ctx, "/photosets/c.jpg", fp, nil))

	e, err := db.Entry(ctx, "/photos/2024/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, inner.ID, e.WorkspaceID)
	assert.Nil(t, e.Thumbnail)

	e, err = db.Entry(ctx, "/photos/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, outer.ID, e.WorkspaceID)

	e, err = db.Entry(ctx, "/photosets/c.jpg")
	require.NoError(t, err)
	assert.Zero(t, e.WorkspaceID)

	_, err = db.Entry(ctx, "/nothing.jpg")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestEnsureWorkspaceIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.EnsureWorkspace(ctx, "/photos")
	require.NoError(t, err)
	second, err := db.EnsureWorkspace(ctx, "/photos")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := db.Workspaces(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "photos", all[0].Name)

	_, err = db.Workspace(ctx, "/other")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestAnalysisRoundTripAndFingerprintCheck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fp := mediatypes.Fingerprint{Size: 5, ModTime: 50}

	result := mediatypes.Metrics{
		"width":  mediatypes.Number(640),
		"format": mediatypes.Text("png"),
	}
	require.NoError(t, db.StoreAnalysis(ctx, "/a.png", "File Info", fp, result))

	got, err := db.LoadAnalysis(ctx, "/a.png", "File Info", fp)
	require.NoError(t, err)
	assert.Equal(t, result, got)

	_, err = db.LoadAnalysis(ctx, "/a.png", "File Info", mediatypes.Fingerprint{Size: 5, ModTime: 51})
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = db.LoadAnalysis(ctx, "/a.png", "Other", fp)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDecodeMetricsMapsBooleans(t *testing.T) {
	m, err := decodeMetrics(`{"ok": true, "bad": false, "n": 2, "s": "x", "skip": null}`)
	require.NoError(t, err)
	assert.Equal(t, mediatypes.Metrics{
		"ok":  mediatypes.Number(1),
		"bad": mediatypes.Number(0),
		"n":   mediatypes.Number(2),
		"s":   mediatypes.Text("x"),
	}, m)

	_, err = decodeMetrics("{")
	assert.Error(t, err)
}

func TestRuleSets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.SaveRuleSet(ctx, "/photos", "default", []byte("{}"))
	assert.ErrorIs(t, err, ErrCacheMiss, "workspace must exist")

	_, err = db.EnsureWorkspace(ctx, "/photos")
	require.NoError(t, err)

	require.NoError(t, db.SaveRuleSet(ctx, "/photos", "default", []byte(`{"sorts":[]}`)))
	require.NoError(t, db.SaveRuleSet(ctx, "/photos", "by-size", []byte(`{}`)))
	require.NoError(t, db.SaveRuleSet(ctx, "/photos", "default", []byte(`{"filters":[]}`)))

	data, err := db.LoadRuleSet(ctx, "/photos", "default")
	require.NoError(t, err)
	assert.JSONEq(t, `{"filters":[]}`, string(data))

	infos, err := db.RuleSets(ctx, "/photos")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "by-size", infos[0].Name)
	assert.Equal(t, "default", infos[1].Name)

	require.NoError(t, db.DeleteRuleSet(ctx, "/photos", "default"))
	_, err = db.LoadRuleSet(ctx, "/photos", "default")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestPruneRemovesVanishedFiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	kept := filepath.Join(dir, "kept.jpg")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0o644))
	gone := filepath.Join(dir, "gone.jpg")

	fp := mediatypes.Fingerprint{Size: 1, ModTime: 1}
	require.NoError(t, db.Upsert(ctx, kept, fp, []byte("k")))
	require.NoError(t, db.Upsert(ctx, gone, fp, []byte("g")))
	require.NoError(t, db.StoreAnalysis(ctx, gone, "File Info", fp, mediatypes.Metrics{}))

	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}
	removed, err := db.Prune(ctx, exists)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	paths, err := db.CachedPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{kept}, paths)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.AnalysisResults)

	removed, err = db.Prune(ctx, exists)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestVacuumAndGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Upsert(ctx, "/a.jpg", mediatypes.Fingerprint{Size: 1}, []byte("abcd")))
	require.NoError(t, db.Vacuum(ctx))

	var provider metrics.StatsProvider = db
	stats := provider.GetStats()
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, int64(4), stats.ThumbnailBytes)
}

func TestRecordQueryCountsCacheMissAsSuccess(t *testing.T) {
	before := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("lookup", "error"))
	recordQuery("lookup", time.Now(), ErrCacheMiss)
	assert.Equal(t, before, testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("lookup", "error")))

	recordQuery("lookup", time.Now(), errors.New("disk I/O error"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("lookup", "error")))
}

func TestEndBatchRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginBatch(ctx)
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO images (path, size, mod_time) VALUES ('/x', 1, 1)")
	require.NoError(t, err)

	cause := errors.New("abort")
	assert.ErrorIs(t, db.EndBatch(tx, cause), cause)

	_, _, err = db.Lookup(ctx, "/x")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
