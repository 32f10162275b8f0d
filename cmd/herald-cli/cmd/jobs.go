package cmd

import (
	"fmt"

	"github.com/nfrund/herald/cmd/herald-cli/internal/output"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List and run maintenance jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cron jobs with their last and next runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		statuses, err := newClient().Jobs(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), statuses)
		}
		output.JobsTable(cmd.OutOrStdout(), statuses)
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a job now and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		result, err := newClient().RunJob(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", result.Job, result.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsRunCmd)
}
