package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks message ids that were allocated on this client and have
// not been persisted yet. Persisted ids are plain UUIDs, so the two namespaces
// can never collide.
const LocalIDPrefix = "local-"

// Message is one entry in a channel's canonical message set.
type Message struct {
	ID        string        `json:"id"`
	ChannelID string        `json:"channelId"`
	AuthorID  string        `json:"authorId"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Author    AuthorDisplay `json:"author"`
}

// NewLocalID allocates an id for an optimistic message.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id belongs to the optimistic namespace.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Before orders messages ascending by creation time, ties broken by id so the
// order is deterministic regardless of arrival order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
