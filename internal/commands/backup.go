package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var errNoBackups = errors.New("backups need the sqlite backend")

func newBackupCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Backup == nil {
				return errNoBackups
			}

			path, err := app.Backup.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List existing backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Backup == nil {
				return errNoBackups
			}

			list, err := app.Backup.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no backups")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TAKEN\tSIZE\tPATH")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Taken.Local().Format("2006-01-02 15:04:05"), b.Size, b.Path)
			}
			return tw.Flush()
		},
	})

	return cmd
}
