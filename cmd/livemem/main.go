package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chrlesur/live-memory/pkg/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "livemem",
	Short: "Live Memory - Shared working memory for AI agents",
	Long: `Live Memory is a shared working-memory service for collaborative AI
agents, exposed as MCP tools over SSE.

Agents append timestamped notes to spaces backed by an S3-compatible
object store. An LLM-driven consolidation pass folds the notes into
per-theme bank files and a rolling synthesis, so long-running projects
keep a compact, readable memory instead of an endless log.`,
	Version: version.Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Live Memory version %s\nCommit: %s\nBuilt: %s\n",
		version.Version, version.Commit, version.BuildTime,
	))

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Live Memory version %s\nCommit: %s\nBuilt: %s\n",
			version.Version, version.Commit, version.BuildTime)
	},
}
