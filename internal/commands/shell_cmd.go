package commands

import (
	"github.com/spf13/cobra"

	"fintrack/internal/cli"
)

func newShellCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Edit transactions interactively",
		Long: "Opens a line editor over the transaction grid. Changes stay in memory\n" +
			"until saved; type help inside the shell for the available commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := cli.GracefulShutdown(cmd.Context(), app.Logger, nil)
			defer cancel()

			app.StartupBackup(ctx)
			return NewShell(app, cmd.OutOrStdout()).Run(ctx, cmd.InOrStdin())
		},
	}
}
