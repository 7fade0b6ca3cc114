package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"phishcatch/internal/core"
	"phishcatch/internal/crawler"
	"phishcatch/internal/domain"
	"phishcatch/internal/reporter"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "check URL",
		Short: "Check whether a page is a clone of a stored baseline",
		Long: `check fetches URL (or reads --file) and routes it like a browsed page:
enterprise pages refresh the baselines, dangerous pages are compared against
them and raise an alert on a match, ignored pages are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			host, err := domain.HostFromURL(args[0])
			if err != nil {
				return err
			}
			if a.classifier.Classify(host) == domain.Ignored {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], domain.Ignored)
				return nil
			}

			content, err := a.pageContent(ctx, args[0], file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			out, err := orch.HandlePage(ctx, core.PageEvent{URL: args[0], Content: content})
			printOutcome(cmd, out)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the page from a file (- for stdin) instead of fetching")
	return cmd
}

func printOutcome(cmd *cobra.Command, out core.Outcome) {
	w := cmd.OutOrStdout()
	switch {
	case out.Match != nil:
		clone := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(w, "%s\t%s\t%s (distance %d)\n", out.URL, out.DomainType, clone("CLONE of "+out.Match.Baseline.Source), out.Match.Distance)
	case out.Saved != nil:
		fmt.Fprintf(w, "%s\t%s\tbaseline saved (%d stored)\n", out.URL, out.DomainType, out.Saved.Size)
	default:
		fmt.Fprintf(w, "%s\t%s\tno match\n", out.URL, out.DomainType)
	}
}

func newScanCmd(opts *globalOptions) *cobra.Command {
	var (
		listFile   string
		reportPath string
		format     string
		depth      int
		maxPages   int
	)

	cmd := &cobra.Command{
		Use:   "scan [URL...]",
		Short: "Fetch many pages concurrently and check each for clones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			urls := append([]string{}, args...)
			if listFile != "" {
				more, err := readURLList(listFile)
				if err != nil {
					return err
				}
				urls = append(urls, more...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given; pass them as arguments or with --list")
			}

			a, err := newApp(ctx, opts.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("depth") {
				depth = opts.settings.Fetch.CrawlDepth
			}
			if !cmd.Flags().Changed("max-pages") {
				maxPages = opts.settings.Fetch.CrawlMaxPages
			}
			if depth > 0 {
				urls = crawlAll(ctx, crawler.NewCrawler(a.client, depth, maxPages), urls)
			}

			results := orch.Scan(ctx, urls)
			for _, r := range results {
				if r.Outcome != nil {
					printOutcome(cmd, *r.Outcome)
				}
				if r.Err != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\terror: %s\n", r.URL, r.Err)
				}
			}

			if reportPath == "" {
				return nil
			}
			entries, err := a.repo.Entries(ctx)
			if err != nil {
				return err
			}
			exp, err := reporter.NewExporter(format, reportPath)
			if err != nil {
				return err
			}
			return exp.Export(reporter.NewReport(time.Now(), entries, results))
		},
	}

	cmd.Flags().StringVarP(&listFile, "list", "l", "", "File with one URL per line")
	cmd.Flags().StringVarP(&reportPath, "report", "r", "", "Write a report to this path")
	cmd.Flags().StringVar(&format, "format", "json", "Report format: json or txt")
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "Follow same-site links this many hops from each URL")
	cmd.Flags().IntVar(&maxPages, "max-pages", crawler.DefaultMaxPages, "Maximum pages discovered per seed URL")
	return cmd
}

// crawlAll expands every seed into the pages discovered from it, dropping
// duplicates across seeds.
func crawlAll(ctx context.Context, c *crawler.Crawler, seeds []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, seed := range seeds {
		pages, err := c.Discover(ctx, seed)
		if err != nil {
			log.Warn().Err(err).Str("url", seed).Msg("Crawl failed, scanning seed only")
			pages = []string{seed}
		}
		for _, p := range pages {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
