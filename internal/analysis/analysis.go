package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"

	"pic-analyzer/internal/database"
	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/metrics"
	"pic-analyzer/internal/plugin"
	"pic-analyzer/internal/tracing"
	"pic-analyzer/internal/workers"
)

var log = logging.For("analysis")

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// Store persists analysis results between runs. *database.Database
// satisfies it.
type Store interface {
	StoreAnalysis(ctx context.Context, path, plugin string, fp mediatypes.Fingerprint, result mediatypes.Metrics) error
	LoadAnalysis(ctx context.Context, path, plugin string, fp mediatypes.Fingerprint) (mediatypes.Metrics, error)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStore persists results to s.
func WithStore(s Store) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithWorkers sets the number of items analyzed concurrently.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithExpiration sets how long memoized results stay in memory.
func WithExpiration(d time.Duration) Option {
	return func(a *Analyzer) { a.expiration = d }
}

// WithRetryConfig sets the retry policy used to fingerprint files.
func WithRetryConfig(cfg filesystem.RetryConfig) Option {
	return func(a *Analyzer) { a.retry = cfg }
}

// Analyzer runs plugins over items. It is safe for concurrent use.
type Analyzer struct {
	store      Store
	workers    int
	expiration time.Duration
	retry      filesystem.RetryConfig
	memo       *gocache.Cache
}

// New returns an Analyzer with an empty memo.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		workers:    workers.ForMixed(0),
		expiration: DefaultExpiration,
		retry:      filesystem.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.memo = gocache.New(a.expiration, DefaultCleanupInterval)
	return a
}

// Forget drops every memoized result.
func (a *Analyzer) Forget() {
	a.memo.Flush()
}

// Analyze returns copies of items with the metrics of every plugin merged
// in. When two plugins report the same key the later plugin wins. items is
// not modified. Only cancellation is returned as an error.
func (a *Analyzer) Analyze(ctx context.Context, items []mediatypes.Item, plugins []plugin.Plugin) (out []mediatypes.Item, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanAnalysisAnalyze,
		attribute.Int(tracing.AttrItemsIn, len(items)),
		attribute.Int(tracing.AttrPlugins, len(plugins)),
	)
	defer func() { tracing.End(span, err) }()

	if len(items) == 0 || len(plugins) == 0 {
		return append([]mediatypes.Item(nil), items...), nil
	}

	start := time.Now()
	out, err = workers.Map(ctx, a.workers, items, func(ctx context.Context, item mediatypes.Item) (mediatypes.Item, error) {
		return a.analyzeItem(ctx, item, plugins)
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Analyzed %d items with %d plugins in %v", len(items), len(plugins), time.Since(start))
	return out, nil
}

func (a *Analyzer) analyzeItem(ctx context.Context, item mediatypes.Item, plugins []plugin.Plugin) (mediatypes.Item, error) {
	fp, err := filesystem.FingerprintOf(item.Path, a.retry)
	if err != nil {
		// Without a fingerprint nothing can be cached; plugins still run.
		log.Debug("Cannot fingerprint %s: %v", item.Path, err)
	}

	merged := mediatypes.Metrics{}
	for _, p := range plugins {
		if err := ctx.Err(); err != nil {
			return item, err
		}
		result, ok := a.result(ctx, p, item.Path, fp)
		if !ok {
			continue
		}
		for k, v := range result {
			merged[k] = v
		}
	}
	return item.WithMetrics(merged), nil
}

// result returns the metrics p reports for path, from memory, the store or
// a fresh run, in that order.
func (a *Analyzer) result(ctx context.Context, p plugin.Plugin, path string, fp mediatypes.Fingerprint) (mediatypes.Metrics, bool) {
	cacheable := !fp.IsZero()
	key := memoKey(p.Name(), path, fp)

	if cacheable {
		if v, found := a.memo.Get(key); found {
			if m, ok := v.(mediatypes.Metrics); ok {
				metrics.AnalysisMemoHits.Inc()
				return m, true
			}
		}
		if a.store != nil {
			m, err := a.store.LoadAnalysis(ctx, path, p.Name(), fp)
			switch {
			case err == nil:
				metrics.AnalysisMemoHits.Inc()
				a.memo.SetDefault(key, m)
				return m, true
			case !errors.Is(err, database.ErrCacheMiss):
				log.Warn("Failed to load %s result for %s: %v", p.Name(), path, err)
			}
		}
	}

	m, err := p.Run(ctx, path)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		log.Warn("Plugin %s failed on %s: %v", p.Name(), path, err)
		return nil, false
	}
	metrics.AnalysisRunsTotal.WithLabelValues("success").Inc()
	if m == nil {
		m = mediatypes.Metrics{}
	}

	if cacheable {
		a.memo.SetDefault(key, m)
		if a.store != nil {
			if err := a.store.StoreAnalysis(ctx, path, p.Name(), fp, m); err != nil {
				log.Warn("Failed to store %s result for %s: %v", p.Name(), path, err)
			}
		}
	}
	return m, true
}

func memoKey(plugin, path string, fp mediatypes.Fingerprint) string {
	return fmt.Sprintf("%s\x00%s\x00%s", plugin, path, fp)
}
