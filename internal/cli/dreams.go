package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roguectrl/electricsheep/internal/journal"
)

func newDreamsCmd() *cobra.Command {
	var (
		format string
		latest bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "dreams",
		Short: "List the dream journal",
		Long: `Lists dream journal entries, newest first.

Examples:
  electricsheep dreams
  electricsheep dreams --latest
  electricsheep dreams --format json > journal.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if latest {
				e, ok, err := journal.Latest(cfg.Paths.DreamsDir)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "No dreams yet.")
					return nil
				}
				fmt.Fprint(out, journal.RenderMarkdown(e.Dream))
				return nil
			}

			entries, err := journal.List(cfg.Paths.DreamsDir)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if format != "" {
				exp, ok := journal.Get(format)
				if !ok {
					return fmt.Errorf("unknown format %q (valid: %s)", format, strings.Join(journal.ValidFormats(), ", "))
				}
				text, err := exp.Export(entries)
				if err != nil {
					return err
				}
				fmt.Fprint(out, text)
				return nil
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No dreams yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s\n", e.Date, e.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format: "+strings.Join(journal.ValidFormats(), ", "))
	cmd.Flags().BoolVar(&latest, "latest", false, "Print the most recent dream")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Most recent N dreams (0 = all)")
	return cmd
}
