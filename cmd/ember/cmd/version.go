package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	ember "github.com/emberdb/ember"
	"github.com/emberdb/ember/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	var shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shortOutput {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), ember.Version)
				return err
			}
			info := buildinfo.Get(ember.Version)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ember %s (commit: %s, built: %s, go: %s)\n",
				info.Version, info.Commit, info.Date, info.GoVersion)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "output only the version number")
	return cmd
}
