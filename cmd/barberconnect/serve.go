package main

import (
	"github.com/smallbiznis/barberconnect/internal/migration"
	"github.com/smallbiznis/barberconnect/internal/scheduler"
	"github.com/smallbiznis/barberconnect/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				migration.Module,
				scheduler.Module,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
