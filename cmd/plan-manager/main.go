package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

func main() {
	var projectRoot string

	rootCmd := &cobra.Command{
		Use:     "plan-manager",
		Short:   "Plan / Story / Task tracking MCP server",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", "", "project root (default: auto-detect)")

	rootCmd.AddCommand(serveCmd(&projectRoot))
	rootCmd.AddCommand(browseCmd(&projectRoot))
	rootCmd.AddCommand(reportCmd(&projectRoot))
	rootCmd.AddCommand(watchCmd(&projectRoot))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "plan-manager", Version)
		},
	}
}
