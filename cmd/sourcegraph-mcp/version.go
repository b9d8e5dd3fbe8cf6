package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/divar-ir/sourcegraph-mcp/internal/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sourcegraph-mcp",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sourcegraph-mcp version %s\n", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
