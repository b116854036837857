package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pic-analyzer/internal/indexer"
	"pic-analyzer/internal/mediatypes"
)

func (a *App) scanCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Index a folder and cache its thumbnails",
		Long: `Walk a folder, reuse cached thumbnails for unchanged images and generate
the rest. Each image is printed as soon as its thumbnail is ready.

Press Ctrl-C to cancel; images already printed stay cached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			_, err = a.scan(cmd.Context(), root, newPrinter(cmd.OutOrStdout()), quiet)
			return err
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the summary")
	return cmd
}

// scan runs one job over root to completion and returns the discovered
// items in discovery order.
func (a *App) scan(ctx context.Context, root string, out *printer, quiet bool) ([]mediatypes.Item, error) {
	job, err := a.newJob(ctx, root)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		items  []mediatypes.Item
		failed string
	)
	indexer.Dispatch(job.Start(ctx), indexer.HandlerFuncs{
		Discovered: func(path string, thumbnail []byte) {
			items = append(items, mediatypes.NewItem(path, thumbnail))
			if !quiet {
				out.line(out.s.Path, "%s  %s", path, out.s.Muted.Render(humanBytes(int64(len(thumbnail)))))
			}
		},
		Failed: func(message string) { failed = message },
	})

	stats := job.Stats()
	switch job.State() {
	case indexer.StateFinished:
		out.line(out.s.Success, "%d images in %v (%d cached, %d generated, %d skipped)",
			stats.Discovered, time.Since(start).Round(time.Millisecond),
			stats.CacheHits, stats.Generated, stats.Skipped)
		return items, nil
	case indexer.StateCancelled:
		out.line(out.s.Warning, "Scan cancelled after %d images", stats.Discovered)
		return items, indexer.ErrCancelled
	default:
		return items, fmt.Errorf("scan failed: %s", failed)
	}
}
