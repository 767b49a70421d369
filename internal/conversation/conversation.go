package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/pool"
	"github.com/avetisov/parley/internal/storage"
)

// keyPrefix namespaces conversation records in the store.
const keyPrefix = "conversation:"

// Store is the persistence surface a conversation needs. Writes are
// last-writer-wins; concurrent saves of the same conversation are not
// merged.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Conversation orchestrates routing and model execution over one history.
// The value is immutable: SendMessage returns a new Conversation and leaves
// the receiver untouched.
type Conversation struct {
	History    History
	Registry   *catalog.Registry
	Pool       *pool.Pool
	Router     *ModelClassifier
	ToolRouter *ToolClassifier
}

// Options carries the shared collaborators a conversation runs against.
// Router and ToolRouter are optional; without them SendMessage uses the
// registry default model and the full tool set.
type Options struct {
	Registry   *catalog.Registry
	Pool       *pool.Pool
	Router     *ModelClassifier
	ToolRouter *ToolClassifier
}

// Start creates a conversation with a fresh random identity.
func Start(opts Options) Conversation {
	return StartWithID(NewConversationID(), opts)
}

// StartWithID creates a conversation with a caller-supplied identity. Used
// for idempotent creation where the client picks the ID.
func StartWithID(id ConversationID, opts Options) Conversation {
	return Conversation{
		History:    NewHistory(id),
		Registry:   opts.Registry,
		Pool:       opts.Pool,
		Router:     opts.Router,
		ToolRouter: opts.ToolRouter,
	}
}

// Load reads a conversation from the store. Returns (nil, nil) when no
// record exists under the ID.
func Load(ctx context.Context, store Store, id ConversationID, opts Options) (*Conversation, error) {
	data, err := store.Get(ctx, keyPrefix+id.String())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", id, err)
	}

	return &Conversation{
		History:    history,
		Registry:   opts.Registry,
		Pool:       opts.Pool,
		Router:     opts.Router,
		ToolRouter: opts.ToolRouter,
	}, nil
}

// Save persists the conversation history. Last write wins.
func (c Conversation) Save(ctx context.Context, store Store) error {
	data, err := json.Marshal(c.History)
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", c.History.ID, err)
	}
	if err := store.Set(ctx, keyPrefix+c.History.ID.String(), data); err != nil {
		return fmt.Errorf("saving conversation %s: %w", c.History.ID, err)
	}
	return nil
}

// SendMessage appends the user text, routes it, executes the selected model
// with the selected tools, and returns a new Conversation carrying the
// response messages in order.
//
// Routing runs in two phases before execution. Phase one picks the model:
// an explicit spec wins, otherwise the router decides when autoRoute is on,
// otherwise the registry default applies. Phase two picks the tool subset
// the same way; without a tool router every registered tool stays in scope.
func (c Conversation) SendMessage(ctx context.Context, text string, spec *catalog.ModelSpec, settings *executor.Settings, autoRoute bool) (Conversation, error) {
	userMsg := StoredMessage{
		ID:      NewMessageID(),
		Content: executor.UserContent(text),
	}
	history := c.History.Append(userMsg)

	// Phase 1a: model selection.
	if spec == nil && autoRoute && c.Router != nil {
		routed, err := c.Router.Route(ctx, history)
		if err != nil {
			return c, fmt.Errorf("routing message: %w", err)
		}
		spec = &routed
	}
	resolved, err := c.Registry.ResolveOrDefault(spec)
	if err != nil {
		return c, err
	}

	// Phase 1b: tool selection. nil means every registered tool.
	var toolNames []string
	if autoRoute && c.ToolRouter != nil {
		toolNames, err = c.ToolRouter.Route(ctx, text)
		if err != nil {
			return c, fmt.Errorf("routing tools: %w", err)
		}
	}

	// Phase 2: execution with the exact model and tool combination.
	handle, err := c.Pool.Get(resolved, toolNames)
	if err != nil {
		return c, fmt.Errorf("acquiring model %s: %w", resolved, err)
	}

	responses, _, err := handle.Invoke(ctx, history.Contents(), settings)
	if err != nil {
		return c, fmt.Errorf("executing model %s: %w", resolved, err)
	}

	for _, content := range responses {
		history = history.Append(StoredMessage{ID: NewMessageID(), Content: content})
	}

	next := c
	next.History = history
	return next, nil
}
