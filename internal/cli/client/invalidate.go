package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// InvalidateCmd creates the invalidate command with subcommands.
func InvalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Push cache invalidation events",
		Long:  "Commands for pushing config-version and collection invalidation events to a running server.",
	}

	cmd.AddCommand(InvalidateConfigCmd())
	cmd.AddCommand(InvalidateCollectionCmd())

	return cmd
}

// InvalidateConfigCmd creates the invalidate config subcommand.
func InvalidateConfigCmd() *cobra.Command {
	var tenantID string
	var version int64

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Invalidate a tenant's cached configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/invalidations/config", map[string]interface{}{
				"tenant_id":   tenantID,
				"new_version": version,
			})
			if err != nil {
				return fmt.Errorf("failed to invalidate config: %w", err)
			}

			var result struct {
				Applied bool `json:"applied"`
			}
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if result.Applied {
				fmt.Printf("Config invalidated for tenant %s (version %d)\n", tenantID, version)
			} else {
				fmt.Printf("Event ignored: cached config for tenant %s is already at version %d or newer\n", tenantID, version)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().Int64Var(&version, "version", 0, "New config version (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("version")

	return cmd
}

// InvalidateCollectionCmd creates the invalidate collection subcommand.
func InvalidateCollectionCmd() *cobra.Command {
	var tenantID string
	var collection string

	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Drop cached retrieval results for a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Post("/invalidations/collections", map[string]string{
				"tenant_id":  tenantID,
				"collection": collection,
			}); err != nil {
				return fmt.Errorf("failed to invalidate collection: %w", err)
			}

			fmt.Printf("Cached results dropped for tenant %s collection %s\n", tenantID, collection)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&collection, "collection", "", "Collection name (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("collection")

	return cmd
}
