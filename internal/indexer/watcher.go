package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pic-analyzer/internal/metrics"
)

const (
	// DefaultDebounce is how long the watcher waits for changes to settle.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 30 * time.Second
)

// Watcher reports settled changes under a root directory. It uses fsnotify
// and falls back to polling when no notify watcher can be created.
type Watcher struct {
	root       string
	debounce   time.Duration
	poll       time.Duration
	skipHidden bool

	mu   sync.Mutex
	last snapshot
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a change is reported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPollInterval forces polling at the given interval instead of fsnotify.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.poll = d }
}

// WithIgnoreHidden ignores changes to dot-files and dot-directories.
func WithIgnoreHidden() WatcherOption {
	return func(w *Watcher) { w.skipHidden = true }
}

// NewWatcher returns a Watcher for root.
func NewWatcher(root string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run calls onChange each time the tree settles after a change, until ctx
// ends. onChange runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	if w.poll > 0 {
		return w.runPoll(ctx, w.poll, onChange)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("File watcher unavailable, polling every %v: %v", DefaultPollInterval, err)
		return w.runPoll(ctx, DefaultPollInterval, onChange)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Error("Failed to close file watcher: %v", err)
		}
	}()

	count, err := w.addDirectories(watcher, w.root)
	if err != nil {
		return err
	}
	metrics.IndexerWatchedDirectories.Set(float64(count))
	defer metrics.IndexerWatchedDirectories.Set(0)
	log.Debug("Watching %d directories under %s", count, w.root)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(watcher, event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error: %v", err)
			metrics.IndexerErrors.WithLabelValues("watch").Inc()

		case <-timer.C:
			log.Info("Changes detected under %s", w.root)
			onChange()
		}
	}
}

// addDirectories registers dir and every visible directory below it.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn("Cannot watch %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.hidden(d.Name()) {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil {
			log.Warn("Failed to add path to watcher %s: %v", path, addErr)
			metrics.IndexerErrors.WithLabelValues("watch").Inc()
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("watch %s: %w", dir, err)
	}
	return count, nil
}

// handleEvent records event and reports whether it should trigger a rescan.
func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	if w.skipHidden && hiddenPath(rel) {
		return false
	}

	op := eventOp(event.Op)
	if op == "" {
		return false
	}
	metrics.IndexerWatcherEventsTotal.WithLabelValues(op).Inc()

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			added, _ := w.addDirectories(watcher, event.Name)
			metrics.IndexerWatchedDirectories.Add(float64(added))
			log.Debug("Added new directory to watcher: %s", event.Name)
			return true
		}
	}

	// A removed or renamed directory has no extension to check.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	return IsSupported(event.Name)
}

func eventOp(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}

func (w *Watcher) hidden(name string) bool {
	return w.skipHidden && strings.HasPrefix(name, ".")
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// snapshot is a cheap summary of the tree used for polling. It looks at the
// root's modification time, the visible top-level entries and each top-level
// directory's modification time, which avoids a recursive walk on slow mounts.
type snapshot struct {
	rootModTime time.Time
	topLevel    int
	subdirs     map[string]time.Time
}

func (w *Watcher) runPoll(ctx context.Context, interval time.Duration, onChange func()) error {
	if err := w.updateLastKnownState(); err != nil {
		return err
	}
	log.Info("Polling %s for changes every %v", w.root, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changed, err := w.detectChanges()
			if err != nil {
				log.Error("Error detecting changes: %v", err)
				continue
			}
			if changed {
				log.Info("Changes detected under %s", w.root)
				if err := w.updateLastKnownState(); err != nil {
					log.Warn("Failed to record state of %s: %v", w.root, err)
				}
				onChange()
			}
		}
	}
}

func (w *Watcher) takeSnapshot() (snapshot, error) {
	rootInfo, err := os.Stat(w.root)
	if err != nil {
		return snapshot{}, fmt.Errorf("stat %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return snapshot{}, fmt.Errorf("read %s: %w", w.root, err)
	}

	s := snapshot{rootModTime: rootInfo.ModTime(), subdirs: make(map[string]time.Time)}
	for _, entry := range entries {
		if w.hidden(entry.Name()) {
			continue
		}
		s.topLevel++
		if entry.IsDir() {
			if info, err := os.Stat(filepath.Join(w.root, entry.Name())); err == nil {
				s.subdirs[entry.Name()] = info.ModTime()
			}
		}
	}
	return s, nil
}

// detectChanges compares the current snapshot with the last recorded one.
func (w *Watcher) detectChanges() (bool, error) {
	current, err := w.takeSnapshot()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	last := w.last
	w.mu.Unlock()

	if current.rootModTime.After(last.rootModTime) {
		log.Debug("Root directory modified: %v > %v", current.rootModTime, last.rootModTime)
		return true, nil
	}
	if current.topLevel != last.topLevel {
		log.Debug("Top-level count changed: %d -> %d", last.topLevel, current.topLevel)
		return true, nil
	}
	for name, mod := range current.subdirs {
		prev, ok := last.subdirs[name]
		if !ok || mod.After(prev) {
			log.Debug("Subdirectory %s changed", name)
			return true, nil
		}
	}
	return false, nil
}

func (w *Watcher) updateLastKnownState() error {
	s, err := w.takeSnapshot()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.last = s
	w.mu.Unlock()
	return nil
}

// Rescanner keeps at most one scan job running for a root. Each Trigger
// cancels the running job and waits for it before starting the next, so the
// cache only ever has one writer.
type Rescanner struct {
	newJob  func() *Job
	consume func(*Job)

	mu      sync.Mutex
	current *Job
	wg      sync.WaitGroup
}

// NewRescanner returns a Rescanner. newJob builds a fresh job; consume
// receives it after start and must drain its events.
func NewRescanner(newJob func() *Job, consume func(*Job)) *Rescanner {
	return &Rescanner{newJob: newJob, consume: consume}
}

// Trigger starts a new scan, cancelling the previous one first.
func (r *Rescanner) Trigger(ctx context.Context) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.current.Cancel()
		_ = r.current.Wait()
	}

	job := r.newJob()
	r.current = job
	job.Start(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consume(job)
	}()
	return job
}

// Current returns the most recently started job, or nil.
func (r *Rescanner) Current() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Stop cancels the running job and waits for consumers to return.
func (r *Rescanner) Stop() {
	r.mu.Lock()
	if r.current != nil {
		r.current.Cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
