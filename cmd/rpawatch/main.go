package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/rpawatch/cmd/rpawatch/commands"
	"github.com/teranos/rpawatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "rpawatch",
	Short: "rpawatch - RPA fault detection, RCA and approved remediation",
	Long: `rpawatch - RPA fault detection, RCA and approved remediation.

rpawatch follows an orchestration platform's live execution feed, stores
executions and their logs, opens one job per faulted execution, classifies it
against a root-cause knowledge base, asks a human for approval by mail and
restarts the process once the reply says YES.

Available commands:
  serve  - Run the feed listener, pipeline, reply watcher and REST API
  jobs   - Inspect jobs
  rca    - Inspect and import the knowledge base
  db     - Database statistics and migrations
  am     - Show and change configuration
  mcp    - Serve assistant tools over stdio

Examples:
  rpawatch serve -v               # Run everything with debug logs
  rpawatch jobs ls --status WaitingForReply
  rpawatch rca import kb.yaml     # Load knowledge base entries
  rpawatch am show --format yaml  # Show effective configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		sink := os.Stdout
		// mcp owns stdout for the protocol
		if cmd.Name() == "mcp" {
			sink = os.Stderr
		}
		if err := logger.InitializeWithSink(jsonLogs, sink); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v debug, -vv raw frames)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit JSON structured logs")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.RCACmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
