// Package commands holds the fintrack command-line interface.
package commands

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
)

type rootFlags struct {
	backend string
}

func (f *rootFlags) bootstrap(ctx context.Context) (*cli.App, error) {
	return cli.Bootstrap(ctx, cli.Options{Backend: f.backend, LogOutput: os.Stderr})
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "fintrack",
		Short: "Spreadsheet-style personal finance tracker",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.backend, "backend", "",
		"data backend, one of "+strings.Join(backend.GetBackendTypeStrings(), ", ")+" (overrides DATA_BACKEND)")

	rootCmd.AddCommand(newShellCommand(flags))
	rootCmd.AddCommand(newListCommand(flags))
	rootCmd.AddCommand(newBackupCommand(flags))
	rootCmd.AddCommand(newSettingsCommand(flags))

	return rootCmd
}
