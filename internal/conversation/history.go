// Package conversation implements multi-turn conversations with two-phase
// routing: a fast classifier model picks the execution model and the tool
// subset before the expensive call runs.
package conversation

import (
	"github.com/avetisov/parley/internal/executor"
)

// Status tracks a conversation's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// StoredMessage wraps a piece of content with a persistence identity so
// individual messages can be referenced after storage.
type StoredMessage struct {
	ID      MessageID        `json:"id"`
	Content executor.Content `json:"content"`
}

// History is the serializable state of a conversation. All updates are
// copy-on-write: Append returns a new History and never mutates the
// receiver, so a History value can be shared across goroutines freely.
type History struct {
	ID       ConversationID  `json:"id"`
	Messages []StoredMessage `json:"messages,omitempty"`
	Status   Status          `json:"status"`
}

// NewHistory creates an empty active history with the given identity.
func NewHistory(id ConversationID) History {
	return History{ID: id, Status: StatusActive}
}

// Append returns a new History with msg added at the end. The receiver's
// message slice is never aliased by the result.
func (h History) Append(msg StoredMessage) History {
	messages := make([]StoredMessage, len(h.Messages)+1)
	copy(messages, h.Messages)
	messages[len(h.Messages)] = msg
	h.Messages = messages
	return h
}

// Contents strips the identity layer, returning the raw content sequence in
// order for feeding back into a model.
func (h History) Contents() []executor.Content {
	contents := make([]executor.Content, len(h.Messages))
	for i, m := range h.Messages {
		contents[i] = m.Content
	}
	return contents
}

// LatestUserText returns the text of the most recent user message, or ""
// when the history holds none.
func (h History) LatestUserText() string {
	for i := len(h.Messages) - 1; i >= 0; i-- {
		if h.Messages[i].Content.Kind == executor.KindUser {
			return h.Messages[i].Content.Text
		}
	}
	return ""
}

// UsedTokens sums token usage across all messages that carry it. This is an
// observability figure, not a budget.
func (h History) UsedTokens() int {
	total := 0
	for _, m := range h.Messages {
		if m.Content.Usage != nil {
			total += m.Content.Usage.TotalTokens
		}
	}
	return total
}
