package executor

import (
	"context"
	"fmt"
	"log/slog"
)

// Handle is a reusable binding of one API model to a fixed tool set. It is
// stateless between calls: the full message history is passed per Invoke,
// so one handle safely serves many conversations concurrently.
type Handle struct {
	client *Client
	model  string // provider API model string
	tools  []Tool
}

// NewHandle binds a model to a tool set on the given client. The handle
// keeps the tool slice as given; callers must not mutate it afterwards.
func NewHandle(client *Client, model string, tools []Tool) *Handle {
	return &Handle{client: client, model: model, tools: tools}
}

// Model returns the provider API model string the handle is bound to.
func (h *Handle) Model() string {
	return h.model
}

// ToolNames returns the names of the bound tools in declaration order.
func (h *Handle) ToolNames() []string {
	names := make([]string, len(h.tools))
	for i, t := range h.tools {
		names[i] = t.Name
	}
	return names
}

// Invoke runs one turn against the bound model: a completion over the full
// history, at most one round of tool execution, and (when tools ran) a
// follow-up completion for the final answer. It returns the new contents in
// the order they occurred: tool calls, tool results, then the answer.
func (h *Handle) Invoke(ctx context.Context, history []Content, settings *Settings) ([]Content, Usage, error) {
	msgs := toWireMessages(history)

	req := completionRequest{
		Model:    h.model,
		Messages: msgs,
		Tools:    h.toolDefs(),
	}
	applySettings(&req, settings)

	resp, err := h.client.complete(ctx, req)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("completion: %w", err)
	}

	total := addUsage(Usage{}, resp.Usage)
	choice := resp.Choices[0].Message

	if len(choice.ToolCalls) == 0 {
		answer := Content{Kind: KindAssistant, Text: choice.Content}
		if resp.Usage != nil {
			answer.Usage = resp.Usage
		}
		return []Content{answer}, total, nil
	}

	// Tool round: record calls, execute, record results, then ask the model
	// to finish with the results in context. The first completion's usage
	// rides on the first tool-call content so the turn's token accounting
	// covers both completions.
	var newContents []Content
	followUp := append(msgs, wireMessage{
		Role:      "assistant",
		Content:   choice.Content,
		ToolCalls: choice.ToolCalls,
	})

	for _, call := range choice.ToolCalls {
		newContents = append(newContents, Content{
			Kind:       KindToolCall,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			ToolArgs:   call.Function.Arguments,
		})

		result := h.runTool(ctx, call)
		newContents = append(newContents, Content{
			Kind:       KindToolResult,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			ToolResult: result,
		})
		followUp = append(followUp, wireMessage{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
	}
	if resp.Usage != nil {
		newContents[0].Usage = resp.Usage
	}

	finalReq := completionRequest{
		Model:    h.model,
		Messages: followUp,
	}
	applySettings(&finalReq, settings)

	finalResp, err := h.client.complete(ctx, finalReq)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("completion after tool round: %w", err)
	}
	total = addUsage(total, finalResp.Usage)

	answer := Content{Kind: KindAssistant, Text: finalResp.Choices[0].Message.Content}
	if finalResp.Usage != nil {
		answer.Usage = finalResp.Usage
	}
	return append(newContents, answer), total, nil
}

// Decide requests a structured JSON decision from the bound model: a
// system prompt, one user message, and a response schema. Returns the raw
// JSON document produced by the model.
func (h *Handle) Decide(ctx context.Context, system, user string, schema *Schema) (string, error) {
	req := completionRequest{
		Model: h.model,
		Messages: []wireMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   "decision",
				Schema: schema,
				Strict: true,
			},
		},
	}

	resp, err := h.client.complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("decision call: %w", err)
	}
	return resp.Choices[0].Message.Content, nil
}

// runTool executes one tool call, returning an error description as the
// result text on failure so the model can recover or explain.
func (h *Handle) runTool(ctx context.Context, call wireToolCall) string {
	for _, t := range h.tools {
		if t.Name != call.Function.Name {
			continue
		}
		out, err := t.Run(ctx, call.Function.Arguments)
		if err != nil {
			slog.Warn("tool execution failed", "tool", t.Name, "error", err)
			return fmt.Sprintf("tool %s failed: %v", t.Name, err)
		}
		return out
	}
	slog.Warn("model requested unbound tool", "tool", call.Function.Name)
	return fmt.Sprintf("tool %s is not available", call.Function.Name)
}

func (h *Handle) toolDefs() []wireToolDef {
	if len(h.tools) == 0 {
		return nil
	}
	defs := make([]wireToolDef, len(h.tools))
	for i, t := range h.tools {
		defs[i] = wireToolDef{
			Type: "function",
			Function: wireFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		}
	}
	return defs
}

// toWireMessages strips contents down to the upstream message format.
func toWireMessages(history []Content) []wireMessage {
	msgs := make([]wireMessage, 0, len(history))
	for _, c := range history {
		switch c.Kind {
		case KindUser:
			msgs = append(msgs, wireMessage{Role: "user", Content: c.Text})
		case KindAssistant:
			msgs = append(msgs, wireMessage{Role: "assistant", Content: c.Text})
		case KindToolCall:
			msgs = append(msgs, wireMessage{
				Role: "assistant",
				ToolCalls: []wireToolCall{{
					ID:   c.ToolCallID,
					Type: "function",
					Function: wireFunction{
						Name:      c.ToolName,
						Arguments: c.ToolArgs,
					},
				}},
			})
		case KindToolResult:
			msgs = append(msgs, wireMessage{
				Role:       "tool",
				Content:    c.ToolResult,
				ToolCallID: c.ToolCallID,
			})
		}
	}
	return msgs
}

func applySettings(req *completionRequest, s *Settings) {
	if s == nil {
		return
	}
	req.Temperature = s.Temperature
	req.MaxTokens = s.MaxTokens
}

func addUsage(total Usage, u *Usage) Usage {
	if u == nil {
		return total
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
	return total
}
