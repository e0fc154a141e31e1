package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"resturant.app/internal/config"
	"resturant.app/internal/migrate"
	"resturant.app/migrations"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFile string
		dsn        string
		timeout    time.Duration
	)

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply schema migrations and seed data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (overrides database.dsn)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")

	run := func(fn func(context.Context, *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			target := dsn
			if target == "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				target = cfg.Database.DSN
			}
			if target == "" {
				return fmt.Errorf("missing DSN: provide --dsn or %s_DATABASE_DSN", config.EnvPrefix)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := sql.Open("pgx", target)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			return fn(ctx, migrate.NewManager(db, migrations.SQL(), migrations.Seeds()))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the latest migration",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				return m.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply pending seed files",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				return m.Seed(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				history, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, item := range history {
					fmt.Println(item)
				}
				return nil
			}),
		},
	)
	return root
}
