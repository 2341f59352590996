package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/postgres"
)

var errNoDatabase = errors.New("DATABASE_URL (or DB_HOST and DB_USER) is required")

func migrateCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), global, func(ctx context.Context, m *postgres.Migrator) error {
					ran, err := m.Migrate(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", ran)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), global, func(ctx context.Context, m *postgres.Migrator) error {
					if err := m.Rollback(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), global, func(ctx context.Context, m *postgres.Migrator) error {
					migrations, err := m.Status(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
					for _, mig := range migrations {
						applied := "pending"
						if mig.IsApplied {
							applied = mig.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
					}
					return w.Flush()
				})
			},
		},
	)

	return cmd
}

// withMigrator connects straight to PostgreSQL; migrations never touch the
// cache, bus or in-memory store.
func withMigrator(ctx context.Context, global *globalOptions, fn func(context.Context, *postgres.Migrator) error) error {
	if global.memory {
		return errors.New("migrate does not apply to the in-memory store")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errNoDatabase
	}

	conn, err := postgres.NewConnection(ctx, postgres.ConfigFromApp(cfg.Database))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	return fn(ctx, postgres.NewMigrator(conn))
}
