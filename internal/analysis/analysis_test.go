package analysis

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pic-analyzer/internal/database"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
	"pic-analyzer/internal/plugin/builtin"
)

// lengthPlugin reports the file size under key, or fails when err is set.
type lengthPlugin struct {
	plugin.Describe
	key   string
	calls atomic.Int64
	err   error
}

func newLengthPlugin(name, key string) *lengthPlugin {
	return &lengthPlugin{Describe: plugin.Describe{PluginName: name}, key: key}
}

func (p *lengthPlugin) Run(_ context.Context, path string) (mediatypes.Metrics, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return mediatypes.Metrics{p.key: mediatypes.Number(float64(info.Size()))}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeMergesMetrics(t *testing.T) {
	dir := t.TempDir()
	items := []mediatypes.Item{
		mediatypes.NewItem(writeFile(t, dir, "a.jpg", "aaaa"), nil),
		mediatypes.NewItem(writeFile(t, dir, "b.jpg", "bb"), nil).WithMetric("keep", mediatypes.Text("yes")),
	}

	first := newLengthPlugin("first", "size")
	second := newLengthPlugin("second", "bytes")

	out, err := New().Analyze(context.Background(), items, []plugin.Plugin{first, second})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, items[0].Path, out[0].Path)
	assert.Equal(t, 4.0, out[0].Metric("size").Float())
	assert.Equal(t, 4.0, out[0].Metric("bytes").Float())
	assert.Equal(t, 2.0, out[1].Metric("size").Float())
	assert.Equal(t, "yes", out[1].Metric("keep").String())

	assert.False(t, items[0].HasMetric("size"))
	assert.Len(t, items[1].Metrics, 1)
}

func TestLaterPluginWins(t *testing.T) {
	dir := t.TempDir()
	items := []mediatypes.Item{mediatypes.NewItem(writeFile(t, dir, "a.jpg", "abc"), nil)}

	constant := &constPlugin{Describe: plugin.Describe{PluginName: "const"}}
	out, err := New().Analyze(context.Background(), items, []plugin.Plugin{newLengthPlugin("len", "size"), constant})
	require.NoError(t, err)
	assert.Equal(t, 99.0, out[0].Metric("size").Float())
}

type constPlugin struct {
	plugin.Describe
}

func (*constPlugin) Run(context.Context, string) (mediatypes.Metrics, error) {
	return mediatypes.Metrics{"size": mediatypes.Number(99)}, nil
}

func TestAnalyzeMemoizes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", "abc")
	items := []mediatypes.Item{mediatypes.NewItem(path, nil)}
	p := newLengthPlugin("len", "size")

	a := New(WithWorkers(2))
	for i := 0; i < 3; i++ {
		_, err := a.Analyze(context.Background(), items, []plugin.Plugin{p})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), p.calls.Load())

	// A new fingerprint is a new key.
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	out, err := a.Analyze(context.Background(), items, []plugin.Plugin{p})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.calls.Load())
	assert.Equal(t, 6.0, out[0].Metric("size").Float())

	a.Forget()
	_, err = a.Analyze(context.Background(), items, []plugin.Plugin{p})
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.calls.Load())
}

func TestAnalyzePersistsThroughStore(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := t.TempDir()
	items := []mediatypes.Item{
		mediatypes.NewItem(writeFile(t, dir, "a.png", "12345"), nil),
		mediatypes.NewItem(writeFile(t, dir, "b.png", "1"), nil),
	}
	p := newLengthPlugin("len", "size")

	_, err = New(WithStore(db)).Analyze(context.Background(), items, []plugin.Plugin{p})
	require.NoError(t, err)
	require.Equal(t, int64(2), p.calls.Load())

	// A fresh analyzer has an empty memo but finds the stored rows.
	out, err := New(WithStore(db)).Analyze(context.Background(), items, []plugin.Plugin{p})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.calls.Load())
	assert.Equal(t, 5.0, out[0].Metric("size").Float())
	assert.Equal(t, 1.0, out[1].Metric("size").Float())
}

func TestFailingPluginLeavesItemWithoutMetrics(t *testing.T) {
	dir := t.TempDir()
	items := []mediatypes.Item{mediatypes.NewItem(writeFile(t, dir, "a.jpg", "abc"), nil)}

	bad := newLengthPlugin("bad", "broken")
	bad.err = errors.New("decode failed")
	good := newLengthPlugin("good", "size")

	a := New()
	out, err := a.Analyze(context.Background(), items, []plugin.Plugin{bad, good})
	require.NoError(t, err)
	assert.False(t, out[0].HasMetric("broken"))
	assert.Equal(t, 3.0, out[0].Metric("size").Float())

	// Failures are not memoized.
	_, err = a.Analyze(context.Background(), items, []plugin.Plugin{bad})
	require.NoError(t, err)
	assert.Equal(t, int64(2), bad.calls.Load())
}

func TestMissingFileIsNotCached(t *testing.T) {
	items := []mediatypes.Item{mediatypes.NewItem(filepath.Join(t.TempDir(), "gone.jpg"), nil)}
	p := &constPlugin{Describe: plugin.Describe{PluginName: "const"}}
	counting := &countingPlugin{Plugin: p}

	a := New()
	for i := 0; i < 2; i++ {
		out, err := a.Analyze(context.Background(), items, []plugin.Plugin{counting})
		require.NoError(t, err)
		assert.Equal(t, 99.0, out[0].Metric("size").Float())
	}
	assert.Equal(t, int64(2), counting.calls.Load())
}

type countingPlugin struct {
	plugin.Plugin
	calls atomic.Int64
}

func (c *countingPlugin) Run(ctx context.Context, path string) (mediatypes.Metrics, error) {
	c.calls.Add(1)
	return c.Plugin.Run(ctx, path)
}

func TestAnalyzeEmptyInputs(t *testing.T) {
	a := New()

	out, err := a.Analyze(context.Background(), nil, []plugin.Plugin{newLengthPlugin("len", "size")})
	require.NoError(t, err)
	assert.Empty(t, out)

	items := []mediatypes.Item{mediatypes.NewItem("/x.jpg", nil)}
	out, err = a.Analyze(context.Background(), items, nil)
	require.NoError(t, err)
	assert.Equal(t, items, out)
}

func TestAnalyzeCancelled(t *testing.T) {
	dir := t.TempDir()
	items := []mediatypes.Item{
		mediatypes.NewItem(writeFile(t, dir, "a.jpg", "a"), nil),
		mediatypes.NewItem(writeFile(t, dir, "b.jpg", "b"), nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := New().Analyze(ctx, items, []plugin.Plugin{newLengthPlugin("len", "size")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestAnalyzeWithFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 40, 30))))
	require.NoError(t, f.Close())

	out, err := New().Analyze(context.Background(),
		[]mediatypes.Item{mediatypes.NewItem(path, nil)},
		[]plugin.Plugin{builtin.NewFileInfo()})
	require.NoError(t, err)

	assert.Equal(t, 40.0, out[0].Metric("width").Float())
	assert.Equal(t, 30.0, out[0].Metric("height").Float())
	assert.True(t, out[0].HasMetric("size"))
}
