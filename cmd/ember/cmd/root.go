// Package cmd provides the ember CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	ember "github.com/emberdb/ember"
	"github.com/emberdb/ember/internal/errkind"
)

var dataDir string

// NewRootCmd creates the root ember command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ember",
		Short:         "Embeddable hybrid search engine",
		Long:          `ember is a command-line front end over a local Ember index: add documents, commit them, and run lexical, vector, or hybrid search.`,
		Version:       ember.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&dataDir, "dir", ".", "index directory (containing schema.toml)")

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newCommitCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code:
// 0 on success, 1 on user error, 2 on I/O or corruption (spec §6).
func Execute() int {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, colorError(cmd.ErrOrStderr() != nil, err))
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	kind, ok := errkind.Of(err)
	if !ok {
		return 1
	}
	switch kind {
	case errkind.Io, errkind.Corruption, errkind.Index:
		return 2
	default:
		return 1
	}
}

// colorError prefixes err with a red "error:" label when stderr is a
// terminal and NO_COLOR is unset, plain "error:" otherwise.
func colorError(_ bool, err error) string {
	if noColor() {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("\x1b[31merror:\x1b[0m %s", err)
}

func noColor() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	return !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
}
