package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/atende-labs/atendai/internal/config"
	"github.com/atende-labs/atendai/internal/jobs"
	"github.com/atende-labs/atendai/internal/repository"
	"github.com/atende-labs/atendai/internal/storage"
)

func ArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage conversation archiving",
	}

	cmd.AddCommand(ArchiveRunCmd())

	return cmd
}

// ArchiveRunCmd returns the one-shot archive pass command, for running the
// archiver out of band (e.g. from cron) instead of inside the server.
func ArchiveRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single archive pass",
		Long:  "Upload transcripts of cold conversations to object storage and mark their turns archived",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.HasS3() {
				return fmt.Errorf("S3 not configured (S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY required)")
			}

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
				Endpoint:        cfg.S3Endpoint,
				Region:          cfg.S3Region,
				AccessKeyID:     cfg.S3AccessKey,
				SecretAccessKey: cfg.S3SecretKey,
				Bucket:          cfg.S3Bucket,
				UsePathStyle:    true,
			})
			if err != nil {
				return fmt.Errorf("failed to create S3 client: %w", err)
			}
			if err := s3Client.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("failed to ensure S3 bucket: %w", err)
			}

			archiver := jobs.NewArchiver(repository.NewConversationRepository(pool), s3Client, cfg.ArchiveAfter)
			if err := archiver.ProcessJobs(ctx); err != nil {
				return fmt.Errorf("archive pass failed: %w", err)
			}

			fmt.Println("Archive pass complete")
			return nil
		},
	}
}
