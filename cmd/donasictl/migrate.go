package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"donasi/internal/db"
	"donasi/migrations"
)

func migrateCmd() *cobra.Command {
	var (
		dsn    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL or --database-url is required")
			}
			ctx := cmd.Context()
			conn, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			all, err := db.Load(migrations.FS)
			if err != nil {
				return err
			}
			applied, err := db.Applied(ctx, conn)
			if err != nil {
				return err
			}
			pending := db.Pending(all, applied)
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, m := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending: %s\n", m.Version)
			}
			if dryRun {
				return nil
			}
			if err := db.Apply(ctx, conn, pending); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(pending))
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
