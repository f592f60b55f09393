package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

// Turn mirrors the conversation history payload.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnPage is one page of conversation history.
type TurnPage struct {
	Items   []Turn `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// HistoryCmd creates the history command.
func HistoryCmd() *cobra.Command {
	var tenantID string
	var cursor string
	var limit int
	var all bool

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Show a conversation's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runHistory(cmd, tenantID, args[0], cursor, limit, all, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume from a previous page's cursor")
	cmd.Flags().IntVar(&limit, "limit", 50, "Turns per page (max 200)")
	cmd.Flags().BoolVar(&all, "all", false, "Follow cursors until the conversation is exhausted")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runHistory(cmd *cobra.Command, tenantID, conversationID, cursor string, limit int, all, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var turns []Turn
	nextCursor := cursor
	for {
		page, err := fetchHistoryPage(api, tenantID, conversationID, nextCursor, limit)
		if err != nil {
			return err
		}
		turns = append(turns, page.Items...)
		nextCursor = page.Cursor
		if !all || !page.HasMore {
			if outputJSON {
				output, _ := json.MarshalIndent(TurnPage{Items: turns, Cursor: nextCursor, HasMore: page.HasMore}, "", "  ")
				fmt.Println(string(output))
				return nil
			}
			for _, turn := range turns {
				fmt.Printf("[%s] %s: %s\n", turn.CreatedAt.Format(time.RFC3339), turn.Role, turn.Content)
			}
			if page.HasMore {
				fmt.Printf("\nMore turns available, resume with --cursor %s\n", nextCursor)
			}
			return nil
		}
	}
}

func fetchHistoryPage(api *APIClient, tenantID, conversationID, cursor string, limit int) (*TurnPage, error) {
	query := url.Values{}
	query.Set("tenant_id", tenantID)
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	resp, err := api.Get(fmt.Sprintf("/conversations/%s/history?%s", url.PathEscape(conversationID), query.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	var page TurnPage
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return &page, nil
}
