package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRememberCmd() *cobra.Command {
	var (
		contextJSON string
		category    string
	)

	cmd := &cobra.Command{
		Use:   "remember <summary>",
		Short: "Store an experience in working and deep memory",
		Long: `Saves the summary to working memory and the full context, encrypted, to
deep memory. Deep memory is only read by the dream cycle.

Examples:
  electricsheep remember "Helped a user debug a flaky test"
  electricsheep remember "Argued about tabs" --category social \
    --context '{"thread": "style-guide", "outcome": "tabs lost"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary := strings.TrimSpace(strings.Join(args, " "))

			var full map[string]any
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &full); err != nil || full == nil {
					return fmt.Errorf("--context must be a JSON object")
				}
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Remember(summary, full, category)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Remembered (%s)\n", res.Entry.Category)
			fmt.Fprintf(out, "  %q\n", summary)
			fmt.Fprintf(out, "  deep memory: %d total, %d awaiting a dream\n", res.Stats.Total, res.Stats.Undreamed)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextJSON, "context", "", "Full context as a JSON object (default: the summary)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Memory category (default: interaction)")
	return cmd
}
