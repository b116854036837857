package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStatsProvider struct {
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	return m.stats
}

func TestCollectorUpdatesCacheGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		Images:          12,
		Workspaces:      2,
		AnalysisResults: 30,
		RuleSets:        1,
		ThumbnailBytes:  4096,
	}}

	c := NewCollector(provider, "", "", time.Hour)
	c.collect()

	assert.Equal(t, 12.0, testutil.ToFloat64(CacheEntries.WithLabelValues("images")))
	assert.Equal(t, 30.0, testutil.ToFloat64(CacheEntries.WithLabelValues("analysis_results")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(CacheThumbnailBytes))
}

func TestCollectorDatabaseSizes(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")
	require.NoError(t, os.WriteFile(dbPath, make([]byte, 128), 0o644))

	c := NewCollector(nil, dbPath, "", time.Hour)
	c.collect()

	assert.Equal(t, 128.0, testutil.ToFloat64(DBSizeBytes.WithLabelValues("main")))
	assert.Equal(t, 0.0, testutil.ToFloat64(DBSizeBytes.WithLabelValues("wal")))
}

func TestCollectorStartStopWritesTextfile(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "pic.prom")

	c := NewCollector(&mockStatsProvider{stats: Stats{Images: 3}}, "", textfile, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "pic_analyzer_cache_entries"))
}

func TestWriteTextfileEmptyPath(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}
