// Package cli defines the Cobra command tree for the electricsheep CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roguectrl/electricsheep/internal/app"
	"github.com/roguectrl/electricsheep/internal/config"
	"github.com/roguectrl/electricsheep/internal/logging"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	configPath string
	verbose    bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "electricsheep",
	Short: "An agent memory that consolidates experiences into dreams",
	Long: `Electric Sheep gives an agent two memories.

Working memory is a short readable list the agent sees while awake. Deep
memory is an encrypted store of full experiences that only the dream cycle
reads. Each night 'electricsheep dream' turns the undreamed deep memories
into a dream journal entry and distills one insight back into working memory.

Run 'electricsheep remember "<summary>"' to record an experience.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default $ELECTRICSHEEP_CONFIG or ~/.config/electricsheep/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		newDreamCmd(),
		newRememberCmd(),
		newStatusCmd(),
		newMemoriesCmd(),
		newDreamsCmd(),
		newBudgetCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "electricsheep %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// openApp loads the config, builds the logger and opens every store. The
// caller must Close the App.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logging.New(cfg.Log.Mode, level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a, err := app.Open(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}
