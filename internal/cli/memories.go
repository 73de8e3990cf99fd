package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	ctxbuild "github.com/roguectrl/electricsheep/internal/context"
)

func newMemoriesCmd() *cobra.Command {
	var (
		limit       int
		category    string
		showContext bool
	)

	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List working memory",
		Long: `Lists working memory entries, oldest first. Deep memories are encrypted
and only the dream cycle reads them; use 'status' for their counts.

With --context, prints working memory exactly as it is rendered into the
agent's prompt, within the configured token budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if showContext {
				fmt.Fprintln(out, a.WorkingContext(category))
				return nil
			}

			entries := a.Working.List(limit, category)
			if len(entries) == 0 {
				fmt.Fprintln(out, "No working memories.")
				return nil
			}
			f := ctxbuild.NewFormatter()
			for _, e := range entries {
				fmt.Fprintln(out, f.FormatEntry(e))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Most recent N entries (0 = all)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only this category")
	cmd.Flags().BoolVar(&showContext, "context", false, "Print the rendered prompt context")
	return cmd
}
