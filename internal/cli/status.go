package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roguectrl/electricsheep/internal/app"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory counts, dream history and today's budget",
		Long: `Shows the agent's state. Output is JSON when --json is set or stdout is
not a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(out) {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(out, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printStatus(out io.Writer, st app.Status) {
	fmt.Fprintf(out, "\nAgent:    %s\n", st.Agent)
	if st.Dreaming {
		fmt.Fprintf(out, "Provider: %s (%s)\n", st.Provider, st.Model)
	} else {
		fmt.Fprintf(out, "Provider: %s (dreaming disabled)\n", st.Provider)
	}

	fmt.Fprintf(out, "Deep:     %d total, %d undreamed, %d dreamed", st.Deep.Total, st.Deep.Undreamed, st.Deep.Dreamed)
	if len(st.Deep.ByCategory) > 0 {
		cats := make([]string, 0, len(st.Deep.ByCategory))
		for c := range st.Deep.ByCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		fmt.Fprint(out, " (")
		for i, c := range cats {
			if i > 0 {
				fmt.Fprint(out, ", ")
			}
			fmt.Fprintf(out, "%d %s", st.Deep.ByCategory[c], c)
		}
		fmt.Fprint(out, ")")
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Working:  %d entries\n", st.WorkingCount)
	fmt.Fprintf(out, "Dreams:   %d", st.TotalDreams)
	if st.LatestDream != "" {
		fmt.Fprintf(out, " (latest: %q)", st.LatestDream)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Last dream:    %s\n", formatWhen(st.LastDream))
	fmt.Fprintf(out, "Last remember: %s\n", formatWhen(st.LastRemember))
	fmt.Fprintf(out, "Budget:   %s\n", describeBudget(st.Budget))
	fmt.Fprintf(out, "Data:     %s\n", st.DataDir)
	fmt.Fprintln(out)
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func describeBudget(b app.BudgetStatus) string {
	if b.Unbounded {
		return fmt.Sprintf("%d tokens used today (no limit)", b.Used)
	}
	return fmt.Sprintf("%d of %d tokens used today, %d remaining", b.Used, b.Limit, b.Remaining)
}
