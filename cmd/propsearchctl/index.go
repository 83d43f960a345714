package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create the catalog search index if it does not exist",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().Bool("recreate", false, "drop and recreate the index (documents are kept and reindexed)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	recreate, _ := cmd.Flags().GetBool("recreate")
	if recreate {
		if err := a.catalog.DropIndex(ctx); err != nil {
			return fmt.Errorf("drop index: %w", err)
		}
	}
	if err := a.catalog.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "index %s ready (dim=%d)\n", a.cfg.Index.Name, a.cfg.Embedding.Dimensions)
	return nil
}
