package conversation

import (
	"fmt"

	"github.com/google/uuid"
)

// ConversationID identifies one conversation. It is the persistence key.
type ConversationID string

// NewConversationID generates a random conversation identifier.
func NewConversationID() ConversationID {
	return ConversationID(uuid.NewString())
}

// ParseConversationID validates an identifier supplied by a caller.
func ParseConversationID(s string) (ConversationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id %q: %w", s, err)
	}
	return ConversationID(u.String()), nil
}

func (id ConversationID) String() string {
	return string(id)
}

// MessageID identifies one stored message within a conversation.
type MessageID string

// NewMessageID generates a random message identifier.
func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

func (id MessageID) String() string {
	return string(id)
}
