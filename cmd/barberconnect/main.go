package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/barberconnect/internal/authorization"
	"github.com/smallbiznis/barberconnect/internal/clock"
	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/connectaccount"
	"github.com/smallbiznis/barberconnect/internal/identity"
	"github.com/smallbiznis/barberconnect/internal/observability"
	"github.com/smallbiznis/barberconnect/internal/paymentgateway"
	"github.com/smallbiznis/barberconnect/internal/ratelimit"
	"github.com/smallbiznis/barberconnect/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	root := &cobra.Command{
		Use:           "barberconnect",
		Short:         "Stripe Connect account provisioning for barbers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCommand())
	root.AddCommand(migrateCommand())
	root.AddCommand(reconcileCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// coreModules wires everything the connect account service depends on.
func coreModules() fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Functional Domains
		identity.Module,
		authorization.Module,
		ratelimit.Module,
		paymentgateway.Module,
		connectaccount.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
