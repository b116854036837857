package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestParseConflictPolicy(t *testing.T) {
	for in, want := range map[string]ConflictPolicy{
		"":          ConflictFail,
		"fail":      ConflictFail,
		"Rename":    ConflictRename,
		" skip ":    ConflictSkip,
		"OVERWRITE": ConflictOverwrite,
	} {
		got, err := ParseConflictPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseConflictPolicy("ask")
	assert.Error(t, err)
}

func TestMoveCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	write(t, src, "a")

	dst := filepath.Join(dir, "out", "2024", "a.jpg")
	got, err := Move(src, dst, ConflictFail)
	require.NoError(t, err)
	assert.Equal(t, dst, got)
	assert.Equal(t, "a", read(t, dst))
	assert.NoFileExists(t, src)
}

func TestMoveConflicts(t *testing.T) {
	tests := []struct {
		policy      ConflictPolicy
		wantDst     string // relative to the out dir; "" means skipped
		wantContent string // content of out/a.jpg afterwards
		wantSrc     bool
		wantErr     error
	}{
		{policy: ConflictFail, wantContent: "old", wantSrc: true, wantErr: ErrDestinationExists},
		{policy: ConflictSkip, wantContent: "old", wantSrc: true},
		{policy: ConflictOverwrite, wantDst: "a.jpg", wantContent: "new"},
		{policy: ConflictRename, wantDst: "a_2.jpg", wantContent: "old"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "a.jpg")
			out := filepath.Join(dir, "out")
			write(t, src, "new")
			write(t, filepath.Join(out, "a.jpg"), "old")
			write(t, filepath.Join(out, "a_1.jpg"), "taken")

			got, err := Move(src, filepath.Join(out, "a.jpg"), tt.policy)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			if tt.wantDst == "" {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, filepath.Join(out, tt.wantDst), got)
				assert.Equal(t, "new", read(t, got))
			}
			assert.Equal(t, tt.wantContent, read(t, filepath.Join(out, "a.jpg")))
			if tt.wantSrc {
				assert.FileExists(t, src)
			} else {
				assert.NoFileExists(t, src)
			}
		})
	}
}

func TestMoveMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Move(filepath.Join(dir, "gone.jpg"), filepath.Join(dir, "x.jpg"), ConflictFail)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	assert.Equal(t, path, UniquePath(path))

	write(t, path, "x")
	assert.Equal(t, filepath.Join(dir, "photo_1.png"), UniquePath(path))

	write(t, filepath.Join(dir, "photo_1.png"), "x")
	assert.Equal(t, filepath.Join(dir, "photo_2.png"), UniquePath(path))
}

func TestCopyAndRemoveKeepsModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	write(t, src, "payload")
	info, err := os.Stat(src)
	require.NoError(t, err)

	dst := filepath.Join(dir, "b.jpg")
	require.NoError(t, copyAndRemove(src, dst))

	assert.NoFileExists(t, src)
	assert.Equal(t, "payload", read(t, dst))
	moved, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(moved.ModTime()))
}
