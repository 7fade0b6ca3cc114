package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"phishcatch/internal/domain"
)

func newBaselineCmd(opts *globalOptions) *cobra.Command {
	var (
		file  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "baseline URL",
		Short: "Fingerprint a trusted page and store it as a baseline",
		Long: `baseline fetches URL (or reads --file) and saves its fingerprint with the
URL's host as source. Near-duplicates of an existing baseline refresh it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			host, err := domain.HostFromURL(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx, opts.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			if t := a.classifier.Classify(host); t != domain.Enterprise && !force {
				return fmt.Errorf("%s is %s, only enterprise domains can be baselines", host, t)
			}

			content, err := a.pageContent(ctx, args[0], file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			fp, err := fingerprint(content, opts.settings.Fingerprint.Strict)
			if err != nil {
				return err
			}

			res, err := a.repo.Save(ctx, fp, host)
			if err != nil {
				return err
			}
			action := "added"
			if res.Merged {
				action = fmt.Sprintf("refreshed (distance %d)", res.Distance)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s, %d baselines\n", fp, action, res.Size)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the page from a file (- for stdin) instead of fetching")
	cmd.Flags().BoolVar(&force, "force", false, "Save even if the host is not an enterprise domain")
	return cmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.repo.Entries(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDED\tHASH\tSOURCE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", time.UnixMilli(e.DateAdded).UTC().Format(time.RFC3339), e.Hash, e.Source)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw stored entries as JSON")
	return cmd
}

func newPruneCmd(opts *globalOptions) *cobra.Command {
	var (
		expiryDays float64
		maxEntries int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop expired baselines and retry queued alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			c := a.cleaner()
			if cmd.Flags().Changed("expiry-days") {
				if expiryDays <= 0 {
					return fmt.Errorf("--expiry-days must be positive")
				}
				c.ExpiryDays = expiryDays
			}
			if cmd.Flags().Changed("max-entries") {
				c.MaxEntries = maxEntries
			}

			rep, err := c.RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d baselines, resent %d alerts\n", rep.Pruned, rep.Resent)
			return err
		},
	}

	cmd.Flags().Float64Var(&expiryDays, "expiry-days", 0, "Age in days after which baselines expire (defaults to fingerprint.expiry_days)")
	cmd.Flags().IntVar(&maxEntries, "max-entries", 0, "Maximum number of baselines kept (defaults to fingerprint.max_entries)")
	return cmd
}
