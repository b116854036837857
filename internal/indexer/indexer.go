package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pic-analyzer/internal/database"
	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/media"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/metrics"
	"pic-analyzer/internal/tracing"
)

var log = logging.For("indexer")

// DefaultEventBuffer is the capacity of a job's event channel.
const DefaultEventBuffer = 32

// ErrCancelled is returned by Run when the job was cancelled, either through
// Cancel or through its context.
var ErrCancelled = errors.New("scan cancelled")

// State is the lifecycle state of a scan job.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateFinished
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCancelled || s == StateFailed
}

// CacheStore is the thumbnail cache a job validates against.
// *database.Database satisfies it.
type CacheStore interface {
	Lookup(ctx context.Context, path string) (mediatypes.Fingerprint, []byte, error)
	Upsert(ctx context.Context, path string, fp mediatypes.Fingerprint, thumbnail []byte) error
}

// ThumbnailGenerator produces a thumbnail fitting within size, or nil when
// the source cannot be decoded. media.Generator satisfies it.
type ThumbnailGenerator interface {
	Generate(path string, size int) []byte
}

// Stats counts what a job did.
type Stats struct {
	Discovered int64
	CacheHits  int64
	Generated  int64
	Skipped    int64
	Folders    int64
}

// Option configures a Job.
type Option func(*Job)

// WithEventBuffer sets the event channel capacity. Zero makes every
// emission wait for the consumer.
func WithEventBuffer(n int) Option {
	return func(j *Job) {
		if n >= 0 {
			j.buffer = n
		}
	}
}

// WithThumbnailSize sets the target thumbnail edge length.
func WithThumbnailSize(size int) Option {
	return func(j *Job) {
		if size > 0 {
			j.thumbSize = size
		}
	}
}

// WithSkipHidden skips dot-files and dot-directories. Jobs include them
// unless this is set.
func WithSkipHidden(skip bool) Option {
	return func(j *Job) { j.skipHidden = skip }
}

// WithRetryConfig sets the retry policy for filesystem calls.
func WithRetryConfig(cfg filesystem.RetryConfig) Option {
	return func(j *Job) { j.retry = cfg }
}

// Job is a single scan of one root directory. A Job runs once; start a new
// one to rescan.
type Job struct {
	ID   string
	Root string

	cache      CacheStore
	gen        ThumbnailGenerator
	buffer     int
	thumbSize  int
	skipHidden bool
	retry      filesystem.RetryConfig

	state      atomic.Int32
	started    atomic.Bool
	events     chan Event
	cancelled  chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	err        error

	discovered atomic.Int64
	cacheHits  atomic.Int64
	generated  atomic.Int64
	skipped    atomic.Int64
	folders    atomic.Int64
}

// NewJob prepares a scan of root. Nothing happens until Start or Run.
func NewJob(root string, cache CacheStore, gen ThumbnailGenerator, opts ...Option) *Job {
	j := &Job{
		ID:        uuid.NewString(),
		Root:      filepath.Clean(root),
		cache:     cache,
		gen:       gen,
		buffer:    DefaultEventBuffer,
		thumbSize: media.DefaultSize,
		retry:     filesystem.DefaultRetryConfig(),
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.events = make(chan Event, j.buffer)
	return j
}

// Events returns the channel discovery and terminal events arrive on. It is
// closed when the job stops.
func (j *Job) Events() <-chan Event {
	return j.events
}

// State returns the current state.
func (j *Job) State() State {
	return State(j.state.Load())
}

// Stats returns a snapshot of the job's counters.
func (j *Job) Stats() Stats {
	return Stats{
		Discovered: j.discovered.Load(),
		CacheHits:  j.cacheHits.Load(),
		Generated:  j.generated.Load(),
		Skipped:    j.skipped.Load(),
		Folders:    j.folders.Load(),
	}
}

// Cancel asks the walk to stop at the next checkpoint. Safe to call more than
// once and from any goroutine.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() { close(j.cancelled) })
}

// Done is closed once the job has reached a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job stops and returns the error Run returned.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Start runs the job on its own goroutine and returns its event channel.
func (j *Job) Start(ctx context.Context) <-chan Event {
	go func() {
		_ = j.Run(ctx)
	}()
	return j.events
}

// Run walks the root synchronously. It returns nil on Finished, ErrCancelled
// on cancellation and the walk error on Failed. Events are closed on return.
func (j *Job) Run(ctx context.Context) (err error) {
	if !j.started.CompareAndSwap(false, true) {
		return fmt.Errorf("scan job %s already started", j.ID)
	}
	defer func() {
		j.err = err
		close(j.events)
		close(j.done)
	}()

	ctx, span := tracing.Start(ctx, tracing.SpanIndexerScan,
		attribute.String(tracing.AttrRoot, j.Root),
		attribute.String(tracing.AttrJobID, j.ID),
	)
	start := time.Now()
	j.state.Store(int32(StateScanning))
	metrics.IndexerIsRunning.Inc()

	log.Info("Scan %s started for %s", j.ID, j.Root)

	walkErr := j.walk(ctx, j.Root, true)

	metrics.IndexerIsRunning.Dec()
	metrics.IndexerScanDuration.Observe(time.Since(start).Seconds())

	var final State
	switch {
	case walkErr == nil:
		final = StateFinished
	case errors.Is(walkErr, ErrCancelled):
		final = StateCancelled
		err = ErrCancelled
	default:
		final = StateFailed
		err = walkErr
	}

	j.state.Store(int32(final))
	metrics.IndexerScansTotal.WithLabelValues(final.String()).Inc()
	span.SetAttributes(
		attribute.String(tracing.AttrScanState, final.String()),
		attribute.Int64(tracing.AttrDiscovered, j.discovered.Load()),
	)
	tracing.End(span, err)

	stats := j.Stats()
	switch final {
	case StateFinished:
		log.Info("Scan %s finished in %v: %d discovered (%d cached, %d generated, %d skipped) in %d folders",
			j.ID, time.Since(start).Round(time.Millisecond), stats.Discovered, stats.CacheHits,
			stats.Generated, stats.Skipped, stats.Folders)
		j.deliver(ctx, Event{Kind: EventFinished})
	case StateCancelled:
		log.Info("Scan %s cancelled after %d discoveries", j.ID, stats.Discovered)
	case StateFailed:
		log.Error("Scan %s failed: %v", j.ID, err)
		j.deliver(ctx, Event{Kind: EventFailed, Err: err})
	}

	return err
}

// stopped is the cancellation checkpoint.
func (j *Job) stopped(ctx context.Context) bool {
	select {
	case <-j.cancelled:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// walk visits dir depth-first in the order the filesystem enumerates it.
func (j *Job) walk(ctx context.Context, dir string, root bool) error {
	if j.stopped(ctx) {
		return ErrCancelled
	}

	if root {
		info, err := filesystem.StatWithRetry(dir, j.retry)
		if err != nil {
			metrics.IndexerErrors.WithLabelValues("walk").Inc()
			return fmt.Errorf("scan root %s: %w", dir, err)
		}
		if !info.IsDir() {
			metrics.IndexerErrors.WithLabelValues("walk").Inc()
			return fmt.Errorf("scan root %s is not a directory", dir)
		}
	}

	entries, err := filesystem.ReadDirWithRetry(dir, j.retry)
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("walk").Inc()
		return fmt.Errorf("read directory %s: %w", dir, err)
	}

	j.folders.Add(1)
	metrics.IndexerFoldersVisited.Inc()

	for _, entry := range entries {
		if j.stopped(ctx) {
			return ErrCancelled
		}

		name := entry.Name()
		if j.skipHidden && strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)

		switch {
		case entry.IsDir():
			if err := j.walk(ctx, path, false); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if !IsSupported(name) {
				continue
			}
			if err := j.processFile(ctx, path); err != nil {
				return err
			}
		case entry.Type()&os.ModeSymlink != 0:
			// Links to files are scanned like the file; links to
			// directories are not followed.
			if !IsSupported(name) {
				continue
			}
			if info, err := filesystem.StatWithRetry(path, j.retry); err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := j.processFile(ctx, path); err != nil {
				return err
			}
		}
	}

	return nil
}

// processFile validates the cache entry for path, generating a thumbnail on
// a miss, and emits the result. Only cancellation is returned as an error.
func (j *Job) processFile(ctx context.Context, path string) error {
	fp, err := filesystem.FingerprintOf(path, j.retry)
	if err != nil {
		// Vanished between enumeration and stat.
		log.Warn("Skipping %s: %v", path, err)
		metrics.IndexerErrors.WithLabelValues("stat").Inc()
		j.skipped.Add(1)
		return nil
	}

	thumb, hit := j.cached(ctx, path, fp)
	if hit {
		j.cacheHits.Add(1)
		metrics.ThumbnailCacheHits.Inc()
	} else {
		metrics.ThumbnailCacheMisses.Inc()
		thumb = j.gen.Generate(path, j.thumbSize)
		if len(thumb) == 0 {
			log.Debug("No thumbnail for %s, skipping", path)
			metrics.IndexerErrors.WithLabelValues("thumbnail").Inc()
			j.skipped.Add(1)
			return nil
		}
		j.generated.Add(1)
		if err := j.cache.Upsert(ctx, path, fp, thumb); err != nil {
			log.Warn("Failed to cache thumbnail for %s: %v", path, err)
			metrics.IndexerErrors.WithLabelValues("cache_store").Inc()
		}
	}

	if !j.emit(ctx, Event{Kind: EventDiscovered, Path: path, Thumbnail: thumb}) {
		return ErrCancelled
	}
	j.discovered.Add(1)
	metrics.IndexerFilesDiscovered.Inc()
	return nil
}

// cached returns the stored thumbnail when it is still valid for fp.
func (j *Job) cached(ctx context.Context, path string, fp mediatypes.Fingerprint) ([]byte, bool) {
	stored, thumb, err := j.cache.Lookup(ctx, path)
	if err != nil {
		if !errors.Is(err, database.ErrCacheMiss) {
			log.Warn("Cache lookup failed for %s: %v", path, err)
			metrics.IndexerErrors.WithLabelValues("cache_lookup").Inc()
		}
		return nil, false
	}
	if !stored.Equal(fp) || len(thumb) == 0 {
		return nil, false
	}
	return thumb, true
}

// emit sends a discovery event unless the job is cancelled first.
func (j *Job) emit(ctx context.Context, ev Event) bool {
	if j.stopped(ctx) {
		return false
	}
	select {
	case j.events <- ev:
		return true
	case <-j.cancelled:
		return false
	case <-ctx.Done():
		return false
	}
}

// deliver sends a terminal event. It gives up only when the context ends.
func (j *Job) deliver(ctx context.Context, ev Event) {
	select {
	case j.events <- ev:
	case <-ctx.Done():
	}
}

// IsSupported reports whether name has a supported image extension,
// ignoring case.
func IsSupported(name string) bool {
	return mediatypes.IsSupportedImage(strings.ToLower(filepath.Ext(name)))
}

// Exists reports whether path is still present. Used to prune the cache.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
