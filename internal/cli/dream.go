package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/roguectrl/electricsheep/internal/budget"
	"github.com/roguectrl/electricsheep/internal/dream"
)

func newDreamCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "dream",
		Short: "Run one dream cycle over the undreamed deep memories",
		Long: `Collects every undreamed deep memory, generates a dream from them, writes
it to the dream journal, distills one insight into working memory, and
only then marks the memories dreamed. A failed cycle commits nothing.

Schedule it nightly, e.g. from cron:
  0 3 * * * electricsheep dream --quiet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !quiet {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("  Dreaming"),
					progressbar.OptionSpinnerType(14),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionClearOnFinish(),
				)
				a.Dreamer.OnPhase = func(p dream.Phase) {
					if p == dream.PhaseIdle {
						_ = bar.Finish()
						return
					}
					bar.Describe("  " + p.String())
				}
			}

			res, err := a.Dreamer.Run(cmd.Context())
			if err != nil {
				var exceeded *budget.ExceededError
				switch {
				case errors.As(err, &exceeded):
					return exceeded
				case errors.Is(err, dream.ErrNoGenerator):
					return fmt.Errorf("dreaming is disabled: set [agent] provider and its API key in the config")
				}
				return err
			}

			out := cmd.OutOrStdout()
			if res.Outcome == dream.OutcomeNoop {
				fmt.Fprintln(out, "No undreamed memories. A dreamless night.")
				return nil
			}
			fmt.Fprintf(out, "Dreamed: %s\n", res.Title)
			fmt.Fprintf(out, "  memories: %d", res.Marked)
			if res.Corrupted > 0 {
				fmt.Fprintf(out, " (%d unrecoverable)", res.Corrupted)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  journal:  %s\n", res.Location)
			if res.Insight != "" {
				fmt.Fprintf(out, "  insight:  %s\n", res.Insight)
			}
			if res.Deferred > 0 {
				fmt.Fprintf(out, "  deferred: %d (over max_prompt_tokens, left for the next dream)\n", res.Deferred)
			}
			if res.Truncated {
				fmt.Fprintln(out, "  note:     the oldest memory alone exceeds max_prompt_tokens and was truncated")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "No spinner")
	return cmd
}
