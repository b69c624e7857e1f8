package plan

import (
	"github.com/spf13/cobra"

	"github.com/stokaro/schemasync/cmd/internal/cli"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes a migration would apply",
		Long: `Compare the declared types with the live database and print the
resulting migration plan without changing anything.

Examples:
  schemasync plan --db-url postgres://localhost/app --declarations types.yaml
  schemasync plan --output json                  # machine-readable plan`,
		Args: cobra.NoArgs,
	}
	command := cli.NewCommand(planCmd)
	planCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		session, err := command.Open(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		plan, err := session.Planner.PlanMigration(cmd.Context())
		if err != nil {
			return err
		}
		return session.Report.Plan(plan)
	}
	return planCmd
}
