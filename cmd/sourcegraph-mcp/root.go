package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sourcegraph-mcp",
	Short: "MCP server exposing Sourcegraph code search as tools",
	Long: `sourcegraph-mcp serves the Sourcegraph code-search API to AI agents over
the Model Context Protocol, on two concurrent transports (streamable HTTP
and SSE). Running without a subcommand starts the server.`,
	// Running bare defaults to serving, matching how operators deploy it.
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
