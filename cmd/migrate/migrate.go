package migrate

import (
	"github.com/spf13/cobra"

	"github.com/stokaro/schemasync/cmd/internal/cli"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database in line with the declarations",
		Long: `Plan and apply the migration. Each step commits on its own; when a step
fails the steps applied before it stay applied, and running migrate again
applies the rest.

Examples:
  schemasync migrate --db-url postgres://localhost/app --declarations types.yaml
  schemasync migrate --lock=false                # skip the migration lock`,
		Args: cobra.NoArgs,
	}
	command := cli.NewCommand(migrateCmd)
	migrateCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		session, err := command.Open(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		lines, err := session.Planner.Migrate(cmd.Context())
		if rerr := session.Report.Applied(lines, err); rerr != nil {
			session.Logger.Error("failed to write report", "error", rerr)
		}
		return err
	}
	return migrateCmd
}
