package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show today's token usage against the daily budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			b := a.Budget()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (UTC): %s\n", b.Date, describeBudget(b))
			if !b.Unbounded {
				fmt.Fprintln(out, "The budget resets at 00:00 UTC.")
			}
			return nil
		},
	}
}
