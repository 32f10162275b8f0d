package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/nfrund/herald/cmd/herald-cli/internal/output"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <topic> <json>",
	Short: "Publish a JSON message to a topic",
	Long: `Publish a message to a topic. The message must be a JSON value; plain
strings need quoting.

Examples:
  herald-cli publish promo_alerts '{"sku":"A1","discount":15}'
  herald-cli publish system '"maintenance at 02:00"'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		result, err := newClient().Publish(ctx, args[0], json.RawMessage(args[1]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published to %s\n", result.Topic)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
