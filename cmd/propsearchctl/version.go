package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/propsearch/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the propsearchctl version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "propsearchctl %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
