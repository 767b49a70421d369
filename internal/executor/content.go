// Package executor talks to OpenAI-compatible chat completion backends. It
// defines the content union that flows through conversation histories and
// the Handle type: a reusable binding of one model to a fixed tool set.
package executor

import "context"

// Content kinds. A conversation turn is an ordered sequence of contents;
// dispatch is always on Kind, never on runtime type.
const (
	KindUser       = "user"
	KindAssistant  = "assistant"
	KindToolCall   = "tool_call"
	KindToolResult = "tool_result"
)

// Usage reports token consumption for one completion call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content is one entry in a conversation: a user request, an assistant
// answer, a tool invocation, or a tool result. Fields are populated
// according to Kind; unused fields stay zero.
type Content struct {
	Kind string `json:"kind"`

	// Text carries the user request or assistant answer.
	Text string `json:"text,omitempty"`

	// Tool call/result fields. ToolCallID links a result to its call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   string `json:"tool_args,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`

	// Usage is set on assistant contents produced by a completion call.
	Usage *Usage `json:"usage,omitempty"`
}

// UserContent wraps plain text as a user request.
func UserContent(text string) Content {
	return Content{Kind: KindUser, Text: text}
}

// PlainText returns the user-facing text of the content, or "" when the
// content carries no plain text (tool calls and results).
func (c Content) PlainText() string {
	switch c.Kind {
	case KindUser, KindAssistant:
		return c.Text
	}
	return ""
}

// Tool is a named callable function an executor may invoke during a turn.
// Run receives the model-supplied arguments as a JSON document and returns
// plain text for the model to read.
type Tool struct {
	Name        string
	Description string
	Schema      *Schema
	Run         func(ctx context.Context, args string) (string, error)
}

// Schema describes the expected JSON structure for tool parameters and for
// structured decision output.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Items       *SchemaProperty `json:"items,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
}
