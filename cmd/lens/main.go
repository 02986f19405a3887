package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "lens",
		Short:         "Lens: cached article analysis and clip synthesis service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "lens.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(),
		newStdioCmd(),
		newAnalyzeCmd(),
		newHistoryCmd(),
		newCacheCmd(),
		newVideoCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
