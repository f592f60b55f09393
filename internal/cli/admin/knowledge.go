package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/atende-labs/atendai/internal/config"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/openai"
	"github.com/atende-labs/atendai/internal/repository"
)

func KnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage knowledge items",
		Long:  "Import and delete knowledge items directly in the database",
	}

	cmd.AddCommand(KnowledgeImportCmd())
	cmd.AddCommand(KnowledgeDeleteCmd())

	return cmd
}

func KnowledgeImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import knowledge items from a JSONL file",
		Long:  "Import knowledge items from a JSONL file, one item per line. With OPENAI_API_KEY set, embeddings are computed during the import.",
		Args:  cobra.ExactArgs(1),
		RunE:  runKnowledgeImport,
	}

	cmd.Flags().Bool("skip-embeddings", false, "Import items without computing embeddings")

	return cmd
}

// importItem is the JSONL line format for knowledge imports.
type importItem struct {
	ID            string                 `json:"id,omitempty"`
	TenantID      string                 `json:"tenant_id"`
	Collection    string                 `json:"collection"`
	Content       string                 `json:"content"`
	ProcessedText string                 `json:"processed_text,omitempty"`
	Action        *domain.ActionTemplate `json:"action,omitempty"`
	Active        *bool                  `json:"active,omitempty"`
	InStock       *bool                  `json:"in_stock,omitempty"`
	ValidFrom     *time.Time             `json:"valid_from,omitempty"`
	ValidUntil    *time.Time             `json:"valid_until,omitempty"`
}

func runKnowledgeImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	skipEmbeddings, _ := cmd.Flags().GetBool("skip-embeddings")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	repo := repository.NewKnowledgeRepository(pool)

	var embedder *openai.Client
	if !skipEmbeddings {
		if !cfg.HasOpenAI() {
			return fmt.Errorf("OPENAI_API_KEY not set (use --skip-embeddings to import without embeddings)")
		}
		embedder = openai.NewClient(cfg.OpenAIAPIKey)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	imported := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var in importItem
		if err := json.Unmarshal(line, &in); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}

		item := &domain.KnowledgeItem{
			ID:            in.ID,
			TenantID:      in.TenantID,
			Collection:    in.Collection,
			Content:       in.Content,
			ProcessedText: in.ProcessedText,
			Action:        in.Action,
			ValidFrom:     in.ValidFrom,
			ValidUntil:    in.ValidUntil,
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if err := domain.ValidateKnowledgeItem(item); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		active := true
		if in.Active != nil {
			active = *in.Active
		}

		if err := repo.Upsert(ctx, item, active, in.InStock); err != nil {
			return fmt.Errorf("line %d: failed to upsert item %s: %w", lineNo, item.ID, err)
		}

		if embedder != nil {
			text := item.ProcessedText
			if text == "" {
				text = item.Content
			}
			vector, err := embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("line %d: failed to embed item %s: %w", lineNo, item.ID, err)
			}
			if err := repo.SetEmbedding(ctx, item.TenantID, item.ID, vector); err != nil {
				return fmt.Errorf("line %d: failed to store embedding for item %s: %w", lineNo, item.ID, err)
			}
		}

		imported++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	fmt.Printf("Imported %d knowledge items\n", imported)
	return nil
}

func KnowledgeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id> <item-id>",
		Short: "Delete a knowledge item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			repo := repository.NewKnowledgeRepository(pool)
			if err := repo.Delete(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to delete item: %w", err)
			}

			fmt.Printf("Deleted knowledge item %s\n", args[1])
			return nil
		},
	}
}
