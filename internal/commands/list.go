package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the stored transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			rows := app.Grid.Snapshot()
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no transactions")
				return nil
			}
			return renderRows(cmd.OutOrStdout(), rows)
		},
	}
}
