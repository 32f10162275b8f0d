package cmd

import (
	"github.com/nfrund/herald/cmd/herald-cli/internal/output"
	"github.com/spf13/cobra"
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List and inspect topics",
	Long: `Inspect the topics the server knows about. Core topics are always present;
dynamic topics appear when first published or subscribed to and are removed by
cleanup once idle with no subscribers.

Examples:
  # List all topics
  herald-cli topics list

  # Show one topic as JSON
  herald-cli topics status promo_alerts --json`,
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List core and dynamic topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		active, err := newClient().Topics(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), active)
		}
		output.TopicsTable(cmd.OutOrStdout(), active)
		return nil
	},
}

var topicsStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show the status of one topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		status, err := newClient().TopicStatus(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), status)
		}
		output.TopicStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsListCmd, topicsStatusCmd)
}
