package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stokaro/schemasync/cmd/migrate"
	"github.com/stokaro/schemasync/cmd/plan"
	"github.com/stokaro/schemasync/cmd/validate"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schemasync",
		Short: "Reconcile declared record types with a live relational database",
		Long: `schemasync compares declared entry types, child types and settings types
with the tables of a PostgreSQL or MySQL database and applies the additive,
idempotent changes needed to bring the database in line.

Every option can also be set in a config file or through SCHEMASYNC_*
environment variables, e.g. SCHEMASYNC_DB_URL.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(plan.NewPlanCommand())
	rootCmd.AddCommand(migrate.NewMigrateCommand())
	rootCmd.AddCommand(validate.NewValidateCommand())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
