package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ember "github.com/emberdb/ember"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report index directory and compaction status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := ember.Open(dataDir)
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "dir:             %s\n", dataDir)
			fmt.Fprintf(cmd.OutOrStdout(), "should_compact:  %t\n", e.ShouldCompact())
			return nil
		},
	}
}
