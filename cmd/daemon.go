package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"phishcatch/internal/crawler"
)

func newDaemonCmd(opts *globalOptions) *cobra.Command {
	var (
		interval time.Duration
		listFile string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the periodic cleanup and, optionally, rescan a URL list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("interval") {
				interval = opts.settings.Cleanup.Interval
			}

			if listFile != "" {
				orch, err := a.orchestrator()
				if err != nil {
					return err
				}
				var crawl *crawler.Crawler
				if d := opts.settings.Fetch.CrawlDepth; d > 0 {
					crawl = crawler.NewCrawler(a.client, d, opts.settings.Fetch.CrawlMaxPages)
				}
				go func() {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						urls, err := readURLList(listFile)
						if err != nil {
							log.Error().Err(err).Msg("Failed to read URL list")
						} else {
							if crawl != nil {
								urls = crawlAll(ctx, crawl, urls)
							}
							orch.Scan(ctx, urls)
						}
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
						}
					}
				}()
			}

			log.Info().Dur("interval", interval).Msg("Daemon started")
			err = a.cleaner().Run(ctx, interval)
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("Daemon stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between passes")
	cmd.Flags().StringVarP(&listFile, "list", "l", "", "File with URLs to rescan every interval")
	return cmd
}
