package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ember "github.com/emberdb/ember"
)

func newCommitCmd() *cobra.Command {
	var optimize bool

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Flush buffered writes into sealed, searchable segments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := ember.Open(dataDir)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Commit(); err != nil {
				return err
			}
			if optimize {
				if err := e.Optimize(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "committed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&optimize, "optimize", false, "also compact segments past the deletion threshold")
	return cmd
}
