package cli

import (
	"sync"

	"github.com/spf13/cobra"

	"pic-analyzer/internal/indexer"
)

func (a *App) watchCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Keep a folder's thumbnail cache current",
		Long: `Scan a folder, then rescan it whenever images are added, changed or
removed. A change during a scan cancels that scan and starts a new one.

Changes are detected with filesystem notifications, or by polling when
watch_poll is set or notifications are unavailable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			factory, err := a.jobFactory(ctx, root)
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			var mu sync.Mutex
			rescanner := indexer.NewRescanner(factory, func(job *indexer.Job) {
				indexer.Dispatch(job.Events(), indexer.HandlerFuncs{
					Discovered: func(path string, _ []byte) {
						if verbose {
							mu.Lock()
							out.line(out.s.Path, "%s", path)
							mu.Unlock()
						}
					},
				})

				mu.Lock()
				defer mu.Unlock()
				stats := job.Stats()
				switch job.State() {
				case indexer.StateFinished:
					out.line(out.s.Success, "%d images (%d cached, %d generated, %d skipped)",
						stats.Discovered, stats.CacheHits, stats.Generated, stats.Skipped)
				case indexer.StateCancelled:
					out.line(out.s.Muted, "Scan superseded after %d images", stats.Discovered)
				case indexer.StateFailed:
					out.line(out.s.Error, "Scan failed: %v", job.Wait())
				}
			})
			defer rescanner.Stop()

			opts := []indexer.WatcherOption{
				indexer.WithDebounce(a.cfg.WatchDebounce),
				indexer.WithPollInterval(a.cfg.WatchPoll),
			}
			if a.cfg.SkipHidden {
				opts = append(opts, indexer.WithIgnoreHidden())
			}
			watcher := indexer.NewWatcher(root, opts...)

			out.line(out.s.Title, "Watching %s", root)
			rescanner.Trigger(ctx)
			return watcher.Run(ctx, func() {
				if ctx.Err() == nil {
					rescanner.Trigger(ctx)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every image as it is indexed")
	return cmd
}
