package metrics

import (
	"os"
	"time"

	"pic-analyzer/internal/logging"
)

// StatsProvider reports cache database statistics.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds cache database row counts.
type Stats struct {
	Images          int
	Workspaces      int
	AnalysisResults int
	RuleSets        int
	ThumbnailBytes  int64
}

// Collector periodically refreshes the cache gauges and, when a textfile
// path is configured, rewrites the textfile.
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	textfile      string
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath and textfile may be empty.
func NewCollector(provider StatsProvider, dbPath, textfile string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		textfile:      textfile,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop ends the loop and performs a final collection.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			c.collect()
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider != nil {
		stats := c.statsProvider.GetStats()
		CacheEntries.WithLabelValues("images").Set(float64(stats.Images))
		CacheEntries.WithLabelValues("workspaces").Set(float64(stats.Workspaces))
		CacheEntries.WithLabelValues("analysis_results").Set(float64(stats.AnalysisResults))
		CacheEntries.WithLabelValues("rule_sets").Set(float64(stats.RuleSets))
		CacheThumbnailBytes.Set(float64(stats.ThumbnailBytes))

		logging.Debug("Metrics collected: images=%d, analysis=%d, thumbnails=%d bytes",
			stats.Images, stats.AnalysisResults, stats.ThumbnailBytes)
	}

	if c.dbPath != "" {
		for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
			if info, err := os.Stat(c.dbPath + suffix); err == nil {
				DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
			} else {
				DBSizeBytes.WithLabelValues(label).Set(0)
			}
		}
	}

	if err := WriteTextfile(c.textfile); err != nil {
		logging.Warn("Failed to write metrics textfile %s: %v", c.textfile, err)
	}
}
