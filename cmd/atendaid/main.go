package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atende-labs/atendai/internal/cli"
	"github.com/atende-labs/atendai/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "atendaid",
		Short: "Atendai daemon and admin CLI",
		Long:  "Atendai daemon for running the orchestration API server, importing knowledge and archiving conversations",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.KnowledgeCmd())
	rootCmd.AddCommand(admin.ArchiveCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
