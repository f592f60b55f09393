package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Reply mirrors the orchestrator's reply payload.
type Reply struct {
	ConversationID string   `json:"conversation_id"`
	Intent         string   `json:"intent"`
	Text           string   `json:"text"`
	Sources        []string `json:"sources,omitempty"`
	ActionID       string   `json:"action_id,omitempty"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// ChatCmd creates the chat command.
func ChatCmd() *cobra.Command {
	var tenantID string
	var conversationID string
	var metadata []string

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a customer message",
		Long:  "Sends a message through the orchestrator as if it arrived from a channel adapter, and prints the reply. Without --conversation a new conversation is started.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runChat(cmd, tenantID, conversationID, args[0], metadata, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID (new conversation if omitted)")
	cmd.Flags().StringArrayVar(&metadata, "var", nil, "Source metadata as key=value (repeatable)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runChat(cmd *cobra.Command, tenantID, conversationID, text string, metadata []string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	sourceMetadata := make(map[string]string, len(metadata))
	for _, pair := range metadata {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --var %q (expected key=value)", pair)
		}
		sourceMetadata[key] = value
	}

	body := map[string]interface{}{
		"tenant_id":       tenantID,
		"conversation_id": conversationID,
		"text":            text,
	}
	if len(sourceMetadata) > 0 {
		body["source_metadata"] = sourceMetadata
	}

	resp, err := api.Post("/messages", body)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return fmt.Errorf("failed to parse reply: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(reply, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Conversation: %s\n", reply.ConversationID)
	fmt.Printf("Intent: %s\n", reply.Intent)
	if reply.ActionID != "" {
		fmt.Printf("Action: %s\n", reply.ActionID)
	}
	if reply.Degraded {
		fmt.Println("(degraded reply)")
	}
	fmt.Println()
	fmt.Println(reply.Text)
	if len(reply.Sources) > 0 {
		fmt.Printf("\nSources: %v\n", reply.Sources)
	}

	return nil
}
