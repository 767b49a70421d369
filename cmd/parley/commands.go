package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avetisov/parley/internal/config"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message and print the model's response",
	Long: `Send a message and print the model's response.

Examples:
  parley chat "what is the capital of France?"
  parley chat --conversation 5f1c... "and its population?"
  parley chat --model anthropic:claude-opus-4-1 "prove the halting problem is undecidable"
  parley chat --no-route "just a quick question"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		conversationID, _ := cmd.Flags().GetString("conversation")
		modelID, _ := cmd.Flags().GetString("model")
		noRoute, _ := cmd.Flags().GetBool("no-route")

		req := map[string]any{
			"text": text,
		}
		if conversationID != "" {
			req["conversation_id"] = conversationID
		}
		if modelID != "" {
			req["model_id"] = modelID
		}
		if noRoute {
			req["auto_route"] = false
		}
		if cmd.Flags().Changed("temperature") {
			temp, _ := cmd.Flags().GetFloat64("temperature")
			req["temperature"] = temp
		}
		if maxTokens, _ := cmd.Flags().GetInt("max-tokens"); maxTokens > 0 {
			req["max_tokens"] = maxTokens
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/conversations", req)
		if err != nil {
			return err
		}

		var result struct {
			ConversationID string `json:"conversation_id"`
			Message        struct {
				Content string `json:"content"`
			} `json:"message"`
			TotalTokens int `json:"total_tokens"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Message.Content)
		printStatus("Conversation", "%s", result.ConversationID)
		printStatus("Tokens used", "%d", result.TotalTokens)
		return nil
	},
}

func init() {
	chatCmd.Flags().String("conversation", "", "continue an existing conversation by ID")
	chatCmd.Flags().String("model", "", "execution model as vendor:model (skips model routing)")
	chatCmd.Flags().Bool("no-route", false, "disable auto-routing; use the default model and all tools")
	chatCmd.Flags().Float64("temperature", 0, "sampling temperature for the execution call")
	chatCmd.Flags().Int("max-tokens", 0, "maximum tokens in the response")
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available execution models",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/models")
		if err != nil {
			return err
		}

		var result struct {
			Models  []string `json:"models"`
			Default string   `json:"default"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, id := range result.Models {
			if id == result.Default {
				fmt.Printf("%s %s\n", colorize(colorBold, id), "(default)")
			} else {
				fmt.Println(id)
			}
		}
		return nil
	},
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's status and usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result struct {
			ConversationID string `json:"conversation_id"`
			Status         string `json:"status"`
			MessageCount   int    `json:"message_count"`
			TotalTokens    int    `json:"total_tokens"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Conversation", "%s", result.ConversationID)
		printStatus("Status", "%s", result.Status)
		printStatus("Messages", "%d", result.MessageCount)
		printStatus("Tokens used", "%d", result.TotalTokens)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
