package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"pic-analyzer/internal/database"
	"pic-analyzer/internal/indexer"
	"pic-analyzer/internal/startup"
)

const (
	// Default timeout for database operations
	defaultTimeout = 5 * time.Minute
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	command := os.Args[1]
	assumeYes := len(os.Args) > 2 && (os.Args[2] == "-y" || os.Args[2] == "--yes")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := databasePath()
	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open cache database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure PIC_DATABASE_PATH is set correctly (current: %s)\n", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	ok := true
	switch command {
	case "stats":
		ok = showStats(ctx, db, os.Stdout)
	case "prune":
		if !assumeYes && !confirm(os.Stdin, os.Stdout, "Remove cache entries for files that no longer exist?") {
			fmt.Println("Aborted.")
			return
		}
		ok = prune(ctx, db, os.Stdout)
	case "vacuum":
		ok = vacuum(ctx, db, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(os.Stderr)
		ok = false
	}
	if !ok {
		stop()
		_ = db.Close()
		os.Exit(1)
	}
}

// databasePath returns PIC_DATABASE_PATH, or the default cache location.
func databasePath() string {
	if p := os.Getenv("PIC_DATABASE_PATH"); p != "" {
		return p
	}
	return startup.DefaultDatabasePath()
}

// sanitizeCommand replaces everything outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "pic-analyzer cache maintenance")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: cachectl <command> [-y]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  stats   - Show cache row counts and size")
	fmt.Fprintln(w, "  prune   - Remove entries for files that no longer exist")
	fmt.Fprintln(w, "  vacuum  - Compact the database file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  PIC_DATABASE_PATH - Cache database (default: %s)\n", startup.DefaultDatabasePath())
}

// confirm asks a yes/no question. On a terminal a single key is read;
// otherwise one line is read from in. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err == nil {
			fmt.Fprintf(out, "%s [y/N] ", question)
			var b [1]byte
			_, err = f.Read(b[:])
			_ = term.Restore(int(f.Fd()), state)
			fmt.Fprintln(out)
			return err == nil && (b[0] == 'y' || b[0] == 'Y')
		}
	}

	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func showStats(ctx context.Context, db *database.Database, out io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats, err := db.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read stats: %v\n", err)
		return false
	}
	workspaces, err := db.Workspaces(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to list workspaces: %v\n", err)
		return false
	}

	fmt.Fprintf(out, "Database:         %s\n", db.Path())
	fmt.Fprintf(out, "Images:           %d\n", stats.Images)
	fmt.Fprintf(out, "Thumbnail bytes:  %d\n", stats.ThumbnailBytes)
	fmt.Fprintf(out, "Analysis results: %d\n", stats.AnalysisResults)
	fmt.Fprintf(out, "Rule sets:        %d\n", stats.RuleSets)
	fmt.Fprintf(out, "Workspaces:       %d\n", stats.Workspaces)
	for _, ws := range workspaces {
		fmt.Fprintf(out, "  %s (last scanned %s)\n", ws.Path, ws.LastScannedAt.Format(time.DateTime))
	}
	return true
}

func prune(ctx context.Context, db *database.Database, out io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	removed, err := db.Prune(ctx, indexer.Exists)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Prune failed: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "Removed %d stale entries.\n", removed)
	return true
}

func vacuum(ctx context.Context, db *database.Database, out io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.Vacuum(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Vacuum failed: %v\n", err)
		return false
	}
	fmt.Fprintln(out, "Database compacted.")
	return true
}
