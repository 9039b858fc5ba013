package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newBackupsCommand(ctx *commandContext) *cobra.Command {
	backupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune configuration backups",
	}
	backupsCmd.AddCommand(newBackupsListCommand(ctx))
	backupsCmd.AddCommand(newBackupsPruneCommand(ctx))
	return backupsCmd
}

func newBackupsListCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			backups, err := store.Backups(commandCtx(cmd))
			if err != nil {
				return err
			}
			table, err := useTable(cmd, format)
			if err != nil {
				return err
			}
			if !table {
				return writeJSON(cmd, backups)
			}
			if len(backups) == 0 {
				printf(cmd.OutOrStdout(), "No backups\n")
				return nil
			}
			rows := make([][]string, 0, len(backups))
			for _, b := range backups {
				rows = append(rows, []string{
					b.ID,
					b.CreatedAt.Local().Format(time.DateTime),
					strconv.FormatInt(b.Size, 10),
				})
			}
			printf(cmd.OutOrStdout(), "%s\n", renderTable([]string{"ID", "Created", "Bytes"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatAuto, "Output format: auto, table or json")
	return cmd
}

func newBackupsPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			removed, err := store.PruneBackups(commandCtx(cmd), keep)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %d backup(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 10, "Number of newest backups to keep")
	return cmd
}
