package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atende-labs/atendai/internal/cli"
	"github.com/atende-labs/atendai/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "atendai",
		Short: "Atendai CLI - customer service orchestration",
		Long: `Atendai CLI provides commands to talk to a running atendai server.

Environment variables:
  ATENDAI_API_KEY   API key for authentication (required)
  ATENDAI_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.HistoryCmd())
	rootCmd.AddCommand(client.InvalidateCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
