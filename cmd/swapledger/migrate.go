package main

import (
	"fmt"
	"time"

	"SwapLedger/internal/config"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"

	"github.com/spf13/cobra"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres audit schema",
	}

	run := func(fn func(cmd *cobra.Command, m *persistence.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd, persistence.NewMigrator(db, persistence.MigrationSource(cfg.Postgres.MigrationsPath), observability.NewLogger("migrator")))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: run(func(cmd *cobra.Command, m *persistence.Migrator) error {
				return m.Up(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: run(func(cmd *cobra.Command, m *persistence.Migrator) error {
				return m.Down(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and when they were applied",
			RunE: run(func(cmd *cobra.Command, m *persistence.Migrator) error {
				status, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range status {
					applied := "pending"
					if s.AppliedAt != nil {
						applied = s.AppliedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s_%s\t%s\n", s.Version, s.Name, applied)
				}
				return nil
			}),
		},
	)
	return cmd
}
