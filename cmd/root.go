// Package cmd contains the command-line interface of phishcatch.
// It uses the Cobra library to wire subcommands to the internal packages.
package cmd

import (
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"phishcatch/internal/config"
	"phishcatch/internal/logger"
)

const Version = "1.0.0"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string

	settings  config.Settings
	logCloser io.Closer
}

// Execute builds the command tree and runs it. It is called by main.main().
func Execute() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "phishcatch",
		Short: "phishcatch detects cloned login pages with fuzzy page fingerprints.",
		Long: `phishcatch fingerprints trusted enterprise pages and flags pages on other
domains that are near-duplicates of them, the usual sign of a phishing clone.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			opts.settings = cfg
			opts.logCloser = logger.Setup(cfg.Log)
			log.Debug().Str("config", opts.configPath).Msg("Configuration loaded")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", ".", "Config file or directory containing phishcatch.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newHashCmd(opts),
		newDiffCmd(opts),
		newBaselineCmd(opts),
		newCheckCmd(opts),
		newScanCmd(opts),
		newListCmd(opts),
		newPruneCmd(opts),
		newDaemonCmd(opts),
	)
	return rootCmd
}
