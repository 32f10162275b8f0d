package cmd

import (
	"context"
	"os"
	"time"

	"github.com/nfrund/herald/cmd/herald-cli/internal/client"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	jsonOutput bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "herald-cli",
	Short: "Herald admin CLI",
	Long: `herald-cli talks to a running herald server through its admin API.

Available commands:
  topics     List and inspect topics
  publish    Publish a JSON message to a topic
  cleanup    Run a topic cleanup pass now
  jobs       List and run maintenance jobs

Use "herald-cli [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("HERALD_SERVER", "http://localhost:1002/api/v1"), "Admin API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON instead of tables")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
