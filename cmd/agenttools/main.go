// Package main runs the agenttools MCP server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...".
var (
	version   = ""
	gitCommit = ""
	buildTime = ""
)

type options struct {
	envFiles      []string
	projectPath   string
	profile       string
	transport     string
	listen        string
	metricsListen string
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "agenttools",
	Short: "MCP tool server for issue workflow, Jira, browsing and formatting",
	Long: `agenttools exposes tools to an AI agent over the Model Context Protocol.

Tool groups are selected with a profile:
  all          workflow, jira, browse and formatter (default)
  workflow     issue workflow and formatter
  jira         Jira base issue, epics and stories
  browse       web search and page fetch through lynx
  formatter    black
  development  virtualenv build and pytest
  full         every group

Examples:
  agenttools --env .env --project-path ~/src/app
  agenttools --profile jira --transport http --listen 127.0.0.1:8090`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agenttools %s (commit %s, built %s)\n", orUnknown(version), orUnknown(gitCommit), orUnknown(buildTime))
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the selected profile registers",
	RunE:  listTools,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringArrayVar(&opts.envFiles, "env", nil, "dotenv file to read; repeatable, earlier files win (default ./.env if present)")
	f.StringVar(&opts.projectPath, "project-path", "", "project working copy, overrides PROJECT_DIR")
	f.StringVar(&opts.profile, "profile", "", "tool profile, overrides AGENTTOOLS_PROFILE")
	rootCmd.Flags().StringVar(&opts.transport, "transport", "stdio", "MCP transport: stdio or http")
	rootCmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP transport address, overrides MCP_HTTP_LISTEN")
	rootCmd.Flags().StringVar(&opts.metricsListen, "metrics-listen", "", "ops server address, overrides METRICS_LISTEN")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
