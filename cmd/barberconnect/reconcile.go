package main

import (
	"context"
	"fmt"

	connectaccountdomain "github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"github.com/smallbiznis/barberconnect/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Delete provider accounts left behind by failed rollbacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc connectaccountdomain.Service
				log *zap.Logger
			)
			app := fx.New(
				fx.NopLogger,
				coreModules(),
				migration.Module,
				fx.Populate(&svc, &log),
			)
			return runApp(cmd.Context(), app, func(ctx context.Context) error {
				report, err := svc.ReconcileOrphans(ctx)
				log.Info("orphan reconciliation finished",
					zap.Int("scanned", report.Scanned),
					zap.Int("resolved", report.Resolved),
					zap.Int("failed", report.Failed),
				)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d resolved=%d failed=%d\n", report.Scanned, report.Resolved, report.Failed)
				return nil
			})
		},
	}
}
