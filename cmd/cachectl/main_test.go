package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pic-analyzer/internal/database"
	"pic-analyzer/internal/mediatypes"
)

// =============================================================================
// Unit Tests
// =============================================================================

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	for _, want := range []string{"stats", "prune", "vacuum", "PIC_DATABASE_PATH"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("usage does not mention %q", want)
		}
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"stats", "stats"},
		{"pr-une_2", "pr-une_2"},
		{"rm -rf /", "rm_-rf__"},
		{"\x1b[31m", "__31m"},
	}
	for _, tt := range tests {
		if got := sanitizeCommand(tt.in); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "Proceed?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Proceed? [y/N]") {
			t.Errorf("prompt not written, got %q", out.String())
		}
	}
}

func TestDatabasePath(t *testing.T) {
	t.Setenv("PIC_DATABASE_PATH", "/tmp/custom.db")
	if got := databasePath(); got != "/tmp/custom.db" {
		t.Errorf("databasePath() = %q, want /tmp/custom.db", got)
	}

	t.Setenv("PIC_DATABASE_PATH", "")
	if got := databasePath(); !strings.HasSuffix(got, filepath.Join("pic-analyzer", "cache.db")) {
		t.Errorf("databasePath() = %q, want the default cache location", got)
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func setupTestDB(t *testing.T) (*database.Database, string) {
	t.Helper()

	tempDir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})
	return db, tempDir
}

// seed records a workspace with one existing and one deleted image.
func seed(t *testing.T, db *database.Database, dir string) {
	t.Helper()
	ctx := context.Background()

	if _, err := db.EnsureWorkspace(ctx, dir); err != nil {
		t.Fatal(err)
	}
	kept := filepath.Join(dir, "kept.jpg")
	if err := os.WriteFile(kept, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp := mediatypes.NewFingerprint(1, time.Now())
	for _, p := range []string{kept, filepath.Join(dir, "gone.jpg")} {
		if err := db.Upsert(ctx, p, fp, []byte("thumb")); err != nil {
			t.Fatal(err)
		}
	}
}

func TestShowStatsIntegration(t *testing.T) {
	db, dir := setupTestDB(t)
	seed(t, db, dir)

	var out bytes.Buffer
	if !showStats(context.Background(), db, &out) {
		t.Fatal("showStats failed")
	}
	for _, want := range []string{"Images:           2", "Workspaces:       1", dir} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stats output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPruneIntegration(t *testing.T) {
	db, dir := setupTestDB(t)
	seed(t, db, dir)
	ctx := context.Background()

	var out bytes.Buffer
	if !prune(ctx, db, &out) {
		t.Fatal("prune failed")
	}
	if !strings.Contains(out.String(), "Removed 1 stale entries") {
		t.Errorf("unexpected output %q", out.String())
	}

	if _, _, err := db.Lookup(ctx, filepath.Join(dir, "kept.jpg")); err != nil {
		t.Errorf("existing file was pruned: %v", err)
	}

	out.Reset()
	if !prune(ctx, db, &out) {
		t.Fatal("second prune failed")
	}
	if !strings.Contains(out.String(), "Removed 0 stale entries") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestVacuumIntegration(t *testing.T) {
	db, _ := setupTestDB(t)

	var out bytes.Buffer
	if !vacuum(context.Background(), db, &out) {
		t.Fatal("vacuum failed")
	}
	if !strings.Contains(out.String(), "compacted") {
		t.Errorf("unexpected output %q", out.String())
	}
}
