package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/migration"
	"github.com/smallbiznis/barberconnect/internal/observability"
	"github.com/smallbiznis/barberconnect/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(migrateUpCommand())
	cmd.AddCommand(migrateDownCommand())
	cmd.AddCommand(migrateVersionCommand())

	return cmd
}

func migrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
				if err := migration.Apply(conn, cfg, log); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func migrateDownCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.RollbackMigrations(sqlDB, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func migrateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				version, dirty, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	}
}

// withDatabase starts just enough of the application to hold a database
// handle, runs fn and shuts down again.
func withDatabase(ctx context.Context, fn func(*gorm.DB, config.Config, *zap.Logger) error) error {
	var (
		conn *gorm.DB
		cfg  config.Config
		log  *zap.Logger
	)
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(&conn, &cfg, &log),
	)
	return runApp(ctx, app, func(context.Context) error {
		return fn(conn, cfg, log)
	})
}

func runApp(ctx context.Context, app *fx.App, fn func(context.Context) error) error {
	if err := app.Err(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
