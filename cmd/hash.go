package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"phishcatch/internal/page"
	"phishcatch/internal/tlsh"
)

func newHashCmd(opts *globalOptions) *cobra.Command {
	var (
		text   string
		html   bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "hash [FILE|-]",
		Short: "Print the fingerprint of a file, stdin or a string",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := text
			if !cmd.Flags().Changed("text") {
				var r io.Reader = cmd.InOrStdin()
				if len(args) == 1 && args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				raw, err := io.ReadAll(r)
				if err != nil {
					return err
				}
				content = string(raw)
			}

			if html {
				body, err := page.SerializeString(content)
				if err != nil {
					return err
				}
				content = body
			}

			fp, err := fingerprint(content, strict || opts.settings.Fingerprint.Strict)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tlsh.Encode(fp))
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Hash this string instead of reading input")
	cmd.Flags().BoolVar(&html, "html", false, "Parse input as HTML and hash the body markup")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject short or low-variation input")
	return cmd
}

func newDiffCmd(opts *globalOptions) *cobra.Command {
	var ignoreLength bool

	cmd := &cobra.Command{
		Use:   "diff HASH HASH",
		Short: "Print the distance between two encoded fingerprints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := tlsh.Decode(args[0])
			if err != nil {
				return err
			}
			b, err := tlsh.Decode(args[1])
			if err != nil {
				return err
			}

			d := a.Distance(b)
			if ignoreLength {
				d = a.DistanceIgnoringLength(b)
			}
			verdict := "different"
			if d < opts.settings.Fingerprint.AlertThreshold {
				verdict = "match"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", d, verdict)
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreLength, "ignore-length", false, "Leave the length term out of the distance")
	return cmd
}
