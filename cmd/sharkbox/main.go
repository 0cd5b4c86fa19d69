// Command sharkbox is a terminal client for the Sharkbox forum.
//
// Usage:
//
//	sharkbox                      Open the TUI on the box list
//	sharkbox tui --box golang     Open the TUI on a box
//	sharkbox login                Sign in through the browser
//	sharkbox logout               Forget the stored session
//	sharkbox whoami               Show the signed-in identity
//	sharkbox boxes                List boxes
//	sharkbox threads <slug>       List a box's threads
//	sharkbox thread <id>          Show a thread and its comments
//	sharkbox user <name>          List a user's threads or comments
//	sharkbox events               JSONL event log viewer
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// Persistent flags.
var (
	flagConfig  string
	flagAPI     string
	flagVerbose bool
	flagTrace   bool
)

var rootCmd = &cobra.Command{
	Use:   "sharkbox",
	Short: "Terminal client for the Sharkbox forum",
	Long: `sharkbox browses boxes, threads and comments from a terminal.

Without a subcommand it opens the interactive browser. List commands print
one page unless --all is given, and print plain text when stdout is not a
terminal.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, tuiOptions{})
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path (default is ~/.sharkbox/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", "", "API base URL, overrides config")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "record request queries in the event log (same as SHARKBOX_TRACE=1)")

	rootCmd.AddCommand(
		newTUICmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newBoxesCmd(),
		newThreadsCmd(),
		newThreadCmd(),
		newUserCmd(),
		newEventsCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
