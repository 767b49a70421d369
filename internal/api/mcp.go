package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/conversation"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/storage"
	"github.com/avetisov/parley/internal/tools"
)

// MCPDeps holds dependencies for the MCP server. KVStore is used for the
// conversations resource; it is the same store behind Deps.Store.
type MCPDeps struct {
	Deps
	Tools   *tools.Registry
	KVStore *storage.Store
}

// NewMCPServer creates an MCP server exposing conversations and the
// registered tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"parley",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("parley — conversation service with two-phase model and tool routing."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a message in a conversation and get the model's response. Routing picks the model and tools unless overridden."),
			mcp.WithString("text", mcp.Description("Message to send"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Existing conversation to continue; omit to start a new one")),
			mcp.WithString("model_id", mcp.Description("Model override in 'vendor:model' form; omit for auto-routing")),
			mcp.WithBoolean("auto_route", mcp.Description("Use intelligent routing (default true)")),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("list_models",
			mcp.WithDescription("List the model identifiers available for conversations."),
		),
		mcpListModels(deps),
	)

	// Expose every registered executor tool directly.
	for _, t := range deps.Tools.All() {
		s.AddTool(bridgedToolSpec(t), mcpBridgeTool(t))
	}

	s.AddResource(
		mcp.NewResource(
			"parley://models",
			"Available Models",
			mcp.WithResourceDescription("Allow-listed model identifiers and the default"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceModels(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"parley://conversations",
			"Stored Conversations",
			mcp.WithResourceDescription("Identifiers of persisted conversations"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConversations(deps),
	)

	return s
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		var conv conversation.Conversation
		if raw := req.GetString("conversation_id", ""); raw != "" {
			id, err := conversation.ParseConversationID(raw)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			loaded, err := conversation.Load(ctx, deps.Store, id, deps.options())
			if err != nil {
				return mcpError(fmt.Sprintf("loading conversation: %v", err)), nil
			}
			if loaded != nil {
				conv = *loaded
			} else {
				conv = conversation.StartWithID(id, deps.options())
			}
		} else {
			conv = conversation.Start(deps.options())
		}

		var spec *catalog.ModelSpec
		if modelID := req.GetString("model_id", ""); modelID != "" {
			parsed, err := deps.Registry.ResolveIdentifier(modelID)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid model: %v", err)), nil
			}
			spec = &parsed
		}

		autoRoute := req.GetBool("auto_route", true)

		updated, err := conv.SendMessage(ctx, text, spec, nil, autoRoute)
		if err != nil {
			return mcpError(fmt.Sprintf("sending message: %v", err)), nil
		}
		if err := updated.Save(ctx, deps.Store); err != nil {
			return mcpError(fmt.Sprintf("saving conversation: %v", err)), nil
		}

		answer := ""
		if n := len(updated.History.Messages); n > 0 {
			answer = updated.History.Messages[n-1].Content.PlainText()
		}

		b, err := json.Marshal(map[string]any{
			"conversation_id": updated.History.ID.String(),
			"content":         answer,
			"total_tokens":    updated.History.UsedTokens(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListModels(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Registry.IDs())
		if err != nil {
			return mcpError(fmt.Sprintf("encoding models: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// bridgedToolSpec translates an executor tool schema into MCP tool options.
func bridgedToolSpec(t executor.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	if t.Schema != nil {
		for name, prop := range t.Schema.Properties {
			propOpts := []mcp.PropertyOption{mcp.Description(prop.Description)}
			if required(t.Schema.Required, name) {
				propOpts = append(propOpts, mcp.Required())
			}
			switch prop.Type {
			case "number", "integer":
				opts = append(opts, mcp.WithNumber(name, propOpts...))
			case "boolean":
				opts = append(opts, mcp.WithBoolean(name, propOpts...))
			case "array":
				opts = append(opts, mcp.WithArray(name, propOpts...))
			default:
				opts = append(opts, mcp.WithString(name, propOpts...))
			}
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func mcpBridgeTool(t executor.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcpError(fmt.Sprintf("encoding arguments: %v", err)), nil
		}
		out, err := t.Run(ctx, string(args))
		if err != nil {
			return mcpError(fmt.Sprintf("%s failed: %v", t.Name, err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpResourceModels(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(map[string]any{
			"models":  deps.Registry.IDs(),
			"default": deps.Registry.Default().String(),
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling models: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceConversations(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		keys, err := deps.KVStore.Keys(ctx, "conversation:")
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}

		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k[len("conversation:"):]
		}
		b, err := json.Marshal(ids)
		if err != nil {
			return nil, fmt.Errorf("marshaling conversation ids: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func required(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
