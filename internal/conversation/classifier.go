package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/pool"
	"github.com/avetisov/parley/internal/tools"
)

const modelRouterSystemPrompt = `Analyze the user's latest query and select the best model to handle it.

Consider:
- Query complexity (simple vs. multi-step reasoning)
- Domain (technical, creative, general)
- User intent (quick answer vs. detailed analysis)

Always provide reasoning for your selection.`

const toolRouterSystemPrompt = `Analyze the user's query and select which tools are needed to answer it.

Rules:
- Only select tools that are NECESSARY for the query
- If the query needs multiple tools, select all relevant ones
- If no tools are needed (general knowledge, simple Q&A), return an empty list
- Be conservative - don't select tools unless truly needed

Examples:
- "What is 5 factorial?" -> ["calculator"]
- "Who won the 2024 Super Bowl?" -> ["web_search"]
- "Calculate 5! and search for Python news" -> ["calculator", "web_search"]
- "What is the capital of France?" -> []`

// RouteDecision is the model classifier's structured output.
type RouteDecision struct {
	Model     string `json:"model"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ToolDecision is the tool classifier's structured output.
type ToolDecision struct {
	Tools     []string `json:"tools"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// ModelClassifier selects an execution model for a query using a fast
// decision model. Its routes are the allow-listed model identifiers; a
// decision outside that list falls back to the first route.
type ModelClassifier struct {
	spec     catalog.ModelSpec
	registry *catalog.Registry
	routes   []string
	pool     *pool.Pool

	once      sync.Once
	handle    *executor.Handle
	handleErr error
}

// NewModelClassifier builds a classifier running on spec. routes must name
// at least one allow-listed model in "vendor:variant" form.
func NewModelClassifier(spec catalog.ModelSpec, registry *catalog.Registry, routes []string, p *pool.Pool) (*ModelClassifier, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("model classifier requires at least one route")
	}
	return &ModelClassifier{spec: spec, registry: registry, routes: routes, pool: p}, nil
}

// client returns the cached decision handle, creating it on first use. The
// classifier never needs tools, so the handle is requested with none.
func (c *ModelClassifier) client() (*executor.Handle, error) {
	c.once.Do(func() {
		c.handle, c.handleErr = c.pool.Get(c.spec, []string{})
	})
	return c.handle, c.handleErr
}

// Route decides which model should answer the latest user message in
// history. The decision is constrained to the classifier's routes.
func (c *ModelClassifier) Route(ctx context.Context, history History) (catalog.ModelSpec, error) {
	h, err := c.client()
	if err != nil {
		return catalog.ModelSpec{}, fmt.Errorf("creating routing client: %w", err)
	}

	schema := &executor.Schema{
		Type: "object",
		Properties: map[string]executor.SchemaProperty{
			"model":     {Type: "string", Enum: c.routes, Description: "Identifier of the model to use"},
			"reasoning": {Type: "string", Description: "Why this model fits the query"},
		},
		Required: []string{"model"},
	}

	raw, err := h.Decide(ctx, c.systemPrompt(), history.LatestUserText(), schema)
	if err != nil {
		return catalog.ModelSpec{}, fmt.Errorf("routing model selection: %w", err)
	}

	var decision RouteDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return catalog.ModelSpec{}, fmt.Errorf("decoding route decision: %w", err)
	}

	choice := decision.Model
	if !contains(c.routes, choice) {
		fallback := c.routes[0]
		slog.Warn("routed model not available, using fallback",
			"requested", choice, "fallback", fallback)
		choice = fallback
	} else {
		slog.Debug("model route selected", "model", choice, "reasoning", decision.Reasoning)
	}

	return c.registry.Catalog().ParseSpec(choice)
}

// systemPrompt lists the concrete routes so the decision model knows what it
// may pick from.
func (c *ModelClassifier) systemPrompt() string {
	var b strings.Builder
	b.WriteString(modelRouterSystemPrompt)
	b.WriteString("\n\nAvailable models:\n")
	for _, r := range c.routes {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ToolClassifier selects the tool subset for a query using a fast decision
// model. Unknown tool names in the decision are dropped.
type ToolClassifier struct {
	spec  catalog.ModelSpec
	tools *tools.Registry
	pool  *pool.Pool

	once      sync.Once
	handle    *executor.Handle
	handleErr error
}

// NewToolClassifier builds a tool classifier running on spec over the
// registered tools.
func NewToolClassifier(spec catalog.ModelSpec, toolReg *tools.Registry, p *pool.Pool) *ToolClassifier {
	return &ToolClassifier{spec: spec, tools: toolReg, pool: p}
}

func (c *ToolClassifier) client() (*executor.Handle, error) {
	c.once.Do(func() {
		c.handle, c.handleErr = c.pool.Get(c.spec, []string{})
	})
	return c.handle, c.handleErr
}

// Route decides which tools are needed to answer query. Returns the empty
// slice (never nil) when the query needs none.
func (c *ToolClassifier) Route(ctx context.Context, query string) ([]string, error) {
	h, err := c.client()
	if err != nil {
		return nil, fmt.Errorf("creating tool routing client: %w", err)
	}

	schema := &executor.Schema{
		Type: "object",
		Properties: map[string]executor.SchemaProperty{
			"tools": {
				Type:        "array",
				Items:       &executor.SchemaProperty{Type: "string"},
				Description: "Names of the tools needed, empty when none",
			},
			"reasoning": {Type: "string", Description: "Why these tools are needed"},
		},
		Required: []string{"tools"},
	}

	raw, err := h.Decide(ctx, c.systemPrompt(), query, schema)
	if err != nil {
		return nil, fmt.Errorf("routing tool selection: %w", err)
	}

	var decision ToolDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("decoding tool decision: %w", err)
	}

	selected := c.tools.FilterNames(decision.Tools)
	if selected == nil {
		selected = []string{}
	}
	slog.Debug("tool route selected", "tools", selected, "reasoning", decision.Reasoning)
	return selected, nil
}

func (c *ToolClassifier) systemPrompt() string {
	var b strings.Builder
	b.WriteString(toolRouterSystemPrompt)
	b.WriteString("\n\nAvailable tools:\n")
	for _, t := range c.tools.All() {
		if t.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", t.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
