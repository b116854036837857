package indexer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pic-analyzer/internal/database"
	"pic-analyzer/internal/media"
	"pic-analyzer/internal/mediatypes"
)

type cacheEntry struct {
	fp    mediatypes.Fingerprint
	thumb []byte
}

type fakeCache struct {
	mu        sync.Mutex
	entries   map[string]cacheEntry
	upserts   int
	lookupErr error
	upsertErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]cacheEntry)}
}

func (c *fakeCache) Lookup(_ context.Context, path string) (mediatypes.Fingerprint, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return mediatypes.Fingerprint{}, nil, c.lookupErr
	}
	e, ok := c.entries[path]
	if !ok {
		return mediatypes.Fingerprint{}, nil, database.ErrCacheMiss
	}
	return e.fp, e.thumb, nil
}

func (c *fakeCache) Upsert(_ context.Context, path string, fp mediatypes.Fingerprint, thumb []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.entries[path] = cacheEntry{fp: fp, thumb: thumb}
	return nil
}

// fakeGenerator returns the path as thumbnail bytes and nil for names
// containing "corrupt".
type fakeGenerator struct {
	calls atomic.Int64
}

func (g *fakeGenerator) Generate(path string, _ int) []byte {
	g.calls.Add(1)
	if strings.Contains(filepath.Base(path), "corrupt") {
		return nil
	}
	return []byte("thumb:" + path)
}

type countingGenerator struct {
	inner media.Generator
	calls atomic.Int64
}

func (g *countingGenerator) Generate(path string, size int) []byte {
	g.calls.Add(1)
	return g.inner.Generate(path, size)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// imageTree has four supported images, one of them under a dot-directory,
// and one unsupported file.
func imageTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "a")
	writeFile(t, filepath.Join(root, "B.PNG"), "bb")
	writeFile(t, filepath.Join(root, "sub", "c.webp"), "ccc")
	writeFile(t, filepath.Join(root, "notes.txt"), "not an image")
	writeFile(t, filepath.Join(root, ".hidden", "d.jpg"), "d")
	return root
}

func collect(t *testing.T, job *Job) []Event {
	t.Helper()
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range job.Events() {
			events = append(events, ev)
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scan did not finish")
	}
	return events
}

func discovered(events []Event) []string {
	var paths []string
	for _, ev := range events {
		if ev.Kind == EventDiscovered {
			paths = append(paths, ev.Path)
		}
	}
	return paths
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.False(t, StateScanning.Terminal())
	assert.True(t, StateFailed.Terminal())
}

func TestIsSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.jpg":           true,
		"a.JPEG":          true,
		"a.Png":           true,
		"a.gif":           true,
		"a.webp":          true,
		"a.BMP":           true,
		"a.tiff":          false,
		"a.txt":           false,
		"jpg":             false,
		"archive.jpg.zip": false,
	} {
		assert.Equal(t, want, IsSupported(name), name)
	}
}

func TestScanEmitsDiscoveriesThenFinished(t *testing.T) {
	root := imageTree(t)
	cache := newFakeCache()
	gen := &fakeGenerator{}

	job := NewJob(root, cache, gen)
	assert.Equal(t, StateIdle, job.State())
	assert.NotEmpty(t, job.ID)

	job.Start(context.Background())
	events := collect(t, job)

	require.Len(t, events, 5)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "B.PNG"),
		filepath.Join(root, "sub", "c.webp"),
		filepath.Join(root, ".hidden", "d.jpg"),
	}, discovered(events))
	assert.Equal(t, EventFinished, events[4].Kind)

	for _, ev := range events[:4] {
		assert.Equal(t, []byte("thumb:"+ev.Path), ev.Thumbnail)
	}

	require.NoError(t, job.Wait())
	assert.Equal(t, StateFinished, job.State())
	assert.Equal(t, int64(4), gen.calls.Load())
	assert.Equal(t, 4, cache.upserts)

	stats := job.Stats()
	assert.Equal(t, int64(4), stats.Discovered)
	assert.Equal(t, int64(4), stats.Generated)
	assert.Equal(t, int64(0), stats.CacheHits)
	assert.Equal(t, int64(3), stats.Folders)
}

func TestRescanReusesCache(t *testing.T) {
	root := imageTree(t)
	cache := newFakeCache()
	gen := &fakeGenerator{}

	first := collect(t, startJob(NewJob(root, cache, gen)))
	require.Len(t, discovered(first), 4)
	require.Equal(t, int64(4), gen.calls.Load())

	gen.calls.Store(0)
	job := NewJob(root, cache, gen)
	second := collect(t, startJob(job))
	assert.ElementsMatch(t, discovered(first), discovered(second))
	assert.Equal(t, int64(0), gen.calls.Load())
	assert.Equal(t, int64(4), job.Stats().CacheHits)
	assert.Equal(t, EventFinished, second[len(second)-1].Kind)

	// Change one file's size and time.
	changed := filepath.Join(root, "a.jpg")
	writeFile(t, changed, "a much longer body")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(changed, later, later))

	gen.calls.Store(0)
	third := collect(t, startJob(NewJob(root, cache, gen)))
	assert.Len(t, discovered(third), 4)
	assert.Equal(t, int64(1), gen.calls.Load())
}

func startJob(job *Job) *Job {
	job.Start(context.Background())
	return job
}

func TestScanWithDatabaseAndImagingGenerator(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "wide.png"), 400, 200)
	writePNG(t, filepath.Join(root, "tiny.png"), 20, 10)
	writePNG(t, filepath.Join(root, "nested", "square.png"), 300, 300)
	writeFile(t, filepath.Join(root, "corrupt.png"), "not a png")

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gen := &countingGenerator{inner: media.NewImagingGenerator()}

	job := NewJob(root, db, gen, WithThumbnailSize(100))
	events := collect(t, startJob(job))
	require.NoError(t, job.Wait())

	paths := discovered(events)
	assert.Len(t, paths, 3)
	assert.NotContains(t, paths, filepath.Join(root, "corrupt.png"))
	assert.Equal(t, int64(4), gen.calls.Load())
	assert.Equal(t, int64(1), job.Stats().Skipped)

	for _, ev := range events {
		if ev.Kind != EventDiscovered {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(ev.Thumbnail))
		require.NoError(t, err, ev.Path)
		b := img.Bounds()
		assert.LessOrEqual(t, b.Dx(), 100, ev.Path)
		assert.LessOrEqual(t, b.Dy(), 100, ev.Path)
	}

	fp, thumb, err := db.Lookup(context.Background(), filepath.Join(root, "wide.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, thumb)
	assert.Equal(t, fileSize(t, filepath.Join(root, "wide.png")), fp.Size)

	// The corrupt file is retried on every scan; the rest come from the cache.
	gen.calls.Store(0)
	again := collect(t, startJob(NewJob(root, db, gen, WithThumbnailSize(100))))
	assert.Len(t, discovered(again), 3)
	assert.Equal(t, int64(1), gen.calls.Load())
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func TestCancelAfterFirstEvent(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"} {
		writeFile(t, filepath.Join(root, name), name)
	}

	job := NewJob(root, newFakeCache(), &fakeGenerator{}, WithEventBuffer(0))
	job.Start(context.Background())

	first, ok := <-job.Events()
	require.True(t, ok)
	require.Equal(t, EventDiscovered, first.Kind)

	job.Cancel()
	job.Cancel()
	<-job.Done()

	var rest []Event
	for ev := range job.Events() {
		rest = append(rest, ev)
	}

	assert.Empty(t, rest)
	assert.Equal(t, StateCancelled, job.State())
	assert.ErrorIs(t, job.Wait(), ErrCancelled)
	assert.Equal(t, int64(1), job.Stats().Discovered)
}

func TestContextCancellationStopsScan(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"1.png", "2.png", "3.png"} {
		writeFile(t, filepath.Join(root, name), name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := NewJob(root, newFakeCache(), &fakeGenerator{}, WithEventBuffer(0))
	job.Start(ctx)

	<-job.Events()
	cancel()
	<-job.Done()

	for ev := range job.Events() {
		t.Errorf("unexpected event after cancellation: %v %s", ev.Kind, ev.Path)
	}
	assert.Equal(t, StateCancelled, job.State())
	assert.ErrorIs(t, job.Wait(), ErrCancelled)
}

func TestCancelBeforeStart(t *testing.T) {
	root := imageTree(t)
	gen := &fakeGenerator{}

	job := NewJob(root, newFakeCache(), gen)
	job.Cancel()

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, collect(t, job))
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestMissingRootFails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")

	job := NewJob(root, newFakeCache(), &fakeGenerator{})
	events := collect(t, startJob(job))

	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.Contains(t, events[0].Message(), root)
	assert.Equal(t, StateFailed, job.State())
	assert.ErrorIs(t, job.Wait(), os.ErrNotExist)
}

func TestRootIsFileFails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file.jpg")
	writeFile(t, root, "x")

	job := NewJob(root, newFakeCache(), &fakeGenerator{})
	events := collect(t, startJob(job))

	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.Contains(t, events[0].Message(), "not a directory")
}

func TestUnreadableDirectoryFails(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "locked", "a.jpg"), "a")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	job := NewJob(root, newFakeCache(), &fakeGenerator{})
	events := collect(t, startJob(job))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventFailed, last.Kind)
	assert.ErrorIs(t, job.Wait(), os.ErrPermission)
}

func TestCorruptImageIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good.jpg"), "ok")
	writeFile(t, filepath.Join(root, "corrupt.jpg"), "bad")

	cache := newFakeCache()
	job := NewJob(root, cache, &fakeGenerator{})
	events := collect(t, startJob(job))

	assert.Equal(t, []string{filepath.Join(root, "good.jpg")}, discovered(events))
	assert.Equal(t, EventFinished, events[len(events)-1].Kind)
	assert.Equal(t, 1, cache.upserts)
	assert.Equal(t, int64(1), job.Stats().Skipped)
}

func TestCacheErrorsDoNotStopScan(t *testing.T) {
	root := imageTree(t)
	cache := newFakeCache()
	cache.lookupErr = errors.New("disk unavailable")
	cache.upsertErr = errors.New("read-only")
	gen := &fakeGenerator{}

	job := NewJob(root, cache, gen)
	events := collect(t, startJob(job))

	assert.Len(t, discovered(events), 4)
	assert.Equal(t, int64(4), gen.calls.Load())
	assert.NoError(t, job.Wait())
}

func TestStaleEntryWithoutThumbnailIsRegenerated(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.gif")
	writeFile(t, path, "gif")
	info, err := os.Stat(path)
	require.NoError(t, err)

	cache := newFakeCache()
	cache.entries[path] = cacheEntry{fp: mediatypes.NewFingerprint(info.Size(), info.ModTime())}
	gen := &fakeGenerator{}

	collect(t, startJob(NewJob(root, cache, gen)))
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestHiddenImagesAreScannedByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "a")
	writeFile(t, filepath.Join(root, ".vacation", "b.jpg"), "b")
	writeFile(t, filepath.Join(root, ".c.png"), "c")

	cache := newFakeCache()
	events := collect(t, startJob(NewJob(root, cache, &fakeGenerator{})))
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, ".vacation", "b.jpg"),
		filepath.Join(root, ".c.png"),
	}, discovered(events))
	assert.Equal(t, 3, cache.upserts)
}

func TestSymlinkedImagesAreScanned(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	writeFile(t, filepath.Join(elsewhere, "target.jpg"), "target")
	writeFile(t, filepath.Join(elsewhere, "dir", "inner.jpg"), "inner")

	require.NoError(t, os.Symlink(filepath.Join(elsewhere, "target.jpg"), filepath.Join(root, "link.jpg")))
	require.NoError(t, os.Symlink(filepath.Join(elsewhere, "dir"), filepath.Join(root, "linkdir")))
	require.NoError(t, os.Symlink(filepath.Join(elsewhere, "gone.jpg"), filepath.Join(root, "dangling.jpg")))

	events := collect(t, startJob(NewJob(root, newFakeCache(), &fakeGenerator{})))
	assert.Equal(t, []string{filepath.Join(root, "link.jpg")}, discovered(events))
	assert.Equal(t, EventFinished, events[len(events)-1].Kind)
}

func TestWithSkipHidden(t *testing.T) {
	root := imageTree(t)

	events := collect(t, startJob(NewJob(root, newFakeCache(), &fakeGenerator{}, WithSkipHidden(true))))
	assert.NotContains(t, discovered(events), filepath.Join(root, ".hidden", "d.jpg"))
	assert.Len(t, discovered(events), 3)
}

func TestRunTwiceIsRejected(t *testing.T) {
	job := NewJob(t.TempDir(), newFakeCache(), &fakeGenerator{})
	require.NoError(t, job.Run(context.Background()))
	assert.Error(t, job.Run(context.Background()))
}

func TestDispatch(t *testing.T) {
	root := imageTree(t)
	job := NewJob(root, newFakeCache(), &fakeGenerator{})

	var (
		paths    []string
		finished int
		failures []string
	)
	Dispatch(job.Start(context.Background()), HandlerFuncs{
		Discovered: func(path string, thumbnail []byte) {
			assert.NotEmpty(t, thumbnail)
			paths = append(paths, path)
		},
		Finished: func() { finished++ },
		Failed:   func(message string) { failures = append(failures, message) },
	})

	assert.Len(t, paths, 4)
	assert.Equal(t, 1, finished)
	assert.Empty(t, failures)

	failing := NewJob(filepath.Join(root, "missing"), newFakeCache(), &fakeGenerator{})
	Dispatch(failing.Start(context.Background()), HandlerFuncs{
		Failed: func(message string) { failures = append(failures, message) },
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "missing")
}
