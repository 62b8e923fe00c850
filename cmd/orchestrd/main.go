// Orchestrd is a task orchestration engine for AI agents, served over the
// Model Context Protocol on stdio.
//
// Usage:
//
//	# Start the MCP server with defaults
//	orchestrd serve
//
//	# Use an explicit config file
//	orchestrd serve --config ~/.config/orchestrd/config.yaml
//
//	# Configure via environment
//	WORKFLOW_MAX_STEPS=10 MONITOR_ENABLED=true orchestrd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orchestrd",
	Short: "Task orchestration engine for AI agents",
	Long: `orchestrd tracks tasks through a status state machine, plans multi-step
workflows with dependency-aware progression, isolates work into sessions,
and preserves execution context across agent handoffs.

It speaks the Model Context Protocol on stdio; an optional HTTP listener
serves health probes and Prometheus metrics.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orchestrd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/orchestrd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
